// Package configs embeds the configuration templates written by
// `cinesphere config init`.
//
// The templates spell out every default from config.NewConfig, so a freshly
// written file changes nothing until it is edited.
package configs

import _ "embed"

// ProjectConfigTemplate is written to .cinesphere.yaml by
// `cinesphere config init --project`.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
