// Package configs provides the embedded configuration template for
// repoindex.
//
// The template is embedded at build time with //go:embed so it ships in
// every distribution of the binary. `repoindex init` writes it out as a
// starting point; internal/config applies the same defaults when no file
// exists at all.
package configs

import _ "embed"

// ConfigTemplate is the annotated example configuration written by
// `repoindex init`. Its values match the defaults in internal/config.
//
//go:embed config.example.yaml
var ConfigTemplate string
