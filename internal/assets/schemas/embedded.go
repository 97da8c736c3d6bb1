// Package schemasassets embeds the JSON schemas the CLI validates against.
//
// Embedding at compile time keeps validation working in installed binaries
// regardless of working directory or installation location.
package schemasassets

import _ "embed"

// JobManifestSchema is the job-manifest JSON schema used by pkg/manifest.
//
//go:embed job-manifest.schema.json
var JobManifestSchema []byte
