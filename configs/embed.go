// Package configs provides embedded configuration templates.
//
// Templates are embedded at build time so they ship inside the binary.
// `wikidex config init` writes UserConfigTemplate to
// ~/.config/wikidex/config.yaml; `wikidex config init --project`
// writes ProjectConfigTemplate to .wikidex.yaml in the working
// directory. See internal/config for the merge order.
package configs

import _ "embed"

// UserConfigTemplate is the machine-level configuration template:
// embedding endpoints, API key variables, and data directory location.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the per-pipeline configuration template:
// dump location, language, collection, and chunking settings.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
