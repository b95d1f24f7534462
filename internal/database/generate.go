package database

import _ "embed"

// schema.sql is the session schema flattened from migrations/files.
// Regenerate it with
//
//	go generate ./internal/database
//
// and check it is current with
//
//	go run internal/database/tools/generate_schema.go -check

//go:generate sh -c "cd ../.. && go run internal/database/tools/generate_schema.go"

// Schema is the current schema, for tests that want a ready database
// without running migrations.
//
//go:embed schema.sql
var Schema string
