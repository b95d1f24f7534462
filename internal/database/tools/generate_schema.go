// generate_schema writes internal/database/schema.sql, the flattened
// session schema that database.Schema embeds, by migrating an in-memory
// database and dumping sqlite_master.
//
// With -check it writes nothing and exits 1 when the embedded schema no
// longer matches the migrations.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"arc-go/internal/database"
	"arc-go/internal/database/migrations"
)

const header = `-- This file is auto-generated from migration files.
-- DO NOT EDIT MANUALLY. Run 'go generate ./internal/database' to regenerate.
-- Source: internal/database/migrations/files/*.sql

`

func main() {
	check := flag.Bool("check", false, "compare with the embedded schema instead of writing it")
	out := flag.String("out", "internal/database/schema.sql", "schema file to write")
	flag.Parse()

	schema, err := dump()
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate_schema: %v\n", err)
		os.Exit(1)
	}

	if *check {
		if schema != database.Schema {
			fmt.Fprintln(os.Stderr, "generate_schema: schema.sql is stale; run go generate ./internal/database")
			os.Exit(1)
		}
		return
	}

	if err := os.WriteFile(*out, []byte(schema), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "generate_schema: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", *out)
}

// dump migrates a scratch database and returns its tables then indexes,
// each sorted by name, without golang-migrate's bookkeeping table.
func dump() (string, error) {
	db, err := database.OpenConnection(":memory:")
	if err != nil {
		return "", err
	}
	defer db.Close()

	if err := migrations.Apply(db); err != nil {
		return "", err
	}

	rows, err := db.Query(`
		SELECT sql FROM sqlite_master
		WHERE type IN ('table', 'index')
		  AND sql IS NOT NULL
		  AND name NOT LIKE 'sqlite_%'
		  AND tbl_name != 'schema_migrations'
		ORDER BY type = 'index', name`)
	if err != nil {
		return "", fmt.Errorf("reading sqlite_master: %w", err)
	}
	defer rows.Close()

	var b strings.Builder
	b.WriteString(header)
	for rows.Next() {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			return "", err
		}
		b.WriteString(stmt + ";\n\n")
	}
	return b.String(), rows.Err()
}
