// Package registry maps task types used in pipeline files (e.g.
// "render_markdown") to the compiled Go runners that implement them.
//
// Every runner is a function of the form
//
//	func(ctx context.Context, s *site.Site, in *Input) (*Output, error)
//
// Input is decoded from the task's `arguments` block through its `hcl` struct
// tags and Output is exposed to downstream tasks through its `cty` tags. The
// registry is validated at startup so that a pipeline naming an unknown task
// type, or a runner with the wrong shape, fails before anything is built.
package registry
