// Package dag is the execution layer of the build. It turns the tasks of a
// pipeline into a directed acyclic graph, linking explicit `depends_on`
// entries and implicit `task.<type>.<name>` references, and runs the graph
// with a pool of workers so that independent tasks build concurrently.
//
// A task whose runner fails cancels the run. Every task downstream of it is
// skipped, and Run reports the failing tasks together with the first
// root-cause error.
package dag
