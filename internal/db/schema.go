package db

import (
	"fmt"
	"regexp"
)

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// schemaTemplate defines a chunk table: text, embedding and flexible
// metadata, with a cosine HNSW index. %[1]s is the table, %[2]d the dimension.
const schemaTemplate = `
    DEFINE TABLE IF NOT EXISTS %[1]s SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS content ON %[1]s TYPE string;
    DEFINE FIELD IF NOT EXISTS embedding ON %[1]s TYPE array<float>;
    DEFINE FIELD IF NOT EXISTS metadata ON %[1]s TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS created ON %[1]s TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS %[1]s_client ON %[1]s FIELDS metadata.client_id;
    DEFINE INDEX IF NOT EXISTS %[1]s_job ON %[1]s FIELDS metadata.job_id;
    DEFINE INDEX IF NOT EXISTS %[1]s_embedding ON %[1]s FIELDS embedding HNSW DIMENSION %[2]d DIST COSINE TYPE F32;
`

// SchemaSQL renders the schema for table with vectors of dimension.
func SchemaSQL(table string, dimension int) (string, error) {
	if err := ValidateTable(table); err != nil {
		return "", err
	}
	if dimension <= 0 {
		return "", fmt.Errorf("invalid embedding dimension %d", dimension)
	}
	return fmt.Sprintf(schemaTemplate, table, dimension), nil
}

// ValidateTable rejects names that cannot be spliced into a statement.
func ValidateTable(table string) error {
	if !tableName.MatchString(table) {
		return fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	return nil
}
