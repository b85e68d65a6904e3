// Package configs provides the embedded configuration template for
// smartfolder.
//
// The template is embedded at build time with //go:embed so it ships
// inside the binary regardless of how it was installed. It is written
// out by 'smartfolder init' as <data-dir>/config.yaml.
package configs

import _ "embed"

// ConfigTemplate is the annotated example configuration written by
// 'smartfolder init'. Every value matches the built-in default, so the
// generated file changes nothing until edited.
//
//go:embed config.example.yaml
var ConfigTemplate string
