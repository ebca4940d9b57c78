// Package config defines the format-agnostic pipeline model: the site
// settings and the list of tasks that make up the build graph.
//
// The `config.Model` is the single source of truth for the `dag` and `app`
// packages. The HCL implementation of the Loader lives in `internal/hcl`.
package config
