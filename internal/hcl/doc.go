// Package hcl provides the HCL implementation of config.Loader. It parses
// pipeline files, resolves site paths and defaults, and translates task
// blocks into the format-agnostic config model.
package hcl
