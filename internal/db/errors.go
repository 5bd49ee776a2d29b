package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

var (
	// ErrTableMissing means a statement referenced a table or index that no
	// longer exists, typically after it was removed by another process.
	ErrTableMissing = errors.New("table missing")

	// ErrTransactionConflict indicates concurrent writes to the same records.
	ErrTransactionConflict = errors.New("transaction conflict")

	// ErrInvalidTable means a table name is not a plain identifier.
	ErrInvalidTable = errors.New("invalid table name")
)

var missingPatterns = []string{
	"does not exist",
	"not found",
	"no index",
}

// wrapQueryError maps a SurrealDB query error onto the package sentinels.
// Other errors are returned unchanged.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		msg := strings.ToLower(queryErr.Message)
		for _, p := range missingPatterns {
			if strings.Contains(msg, p) {
				return fmt.Errorf("%w: %s", ErrTableMissing, queryErr.Message)
			}
		}
		if strings.Contains(msg, "transaction conflict") {
			return fmt.Errorf("%w: %s", ErrTransactionConflict, queryErr.Message)
		}
	}

	return err
}
