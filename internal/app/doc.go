// Package app contains the core application logic: it loads a pipeline,
// wires the runner registry and site context, and drives one-shot builds or
// the development server. It is decoupled from any entrypoint like a CLI.
package app
