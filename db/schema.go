// Package db carries the reference schema so tests and tooling can apply it
// without knowing where the repository is checked out.
package db

import _ "embed"

//go:embed schema.sql
var Schema string
