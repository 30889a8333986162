package schema

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// structuralCodes are SQLSTATE codes meaning the statement no longer fits the
// database: missing table, column or function, or a wrong object type.
var structuralCodes = map[string]struct{}{
	"42P01": {}, // undefined_table
	"42703": {}, // undefined_column
	"42883": {}, // undefined_function
	"42809": {}, // wrong_object_type
	"42P10": {}, // invalid_column_reference
	"0A000": {}, // feature_not_supported
}

var sqliteStructural = []string{
	"no such table",
	"no such column",
	"no such function",
	"has no column named",
}

// Classify wraps structural database failures as KindRemoteProcedureBroken.
// Other errors are returned unchanged.
func Classify(table string, err error) error {
	if err == nil {
		return nil
	}
	if IsStructural(err) {
		return newError(KindRemoteProcedureBroken, table, "", "", err)
	}
	return err
}

// IsStructural reports whether err means the referenced table, column or
// routine does not exist in the shape the statement assumed.
func IsStructural(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRemoteProcedureBroken) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		_, ok := structuralCodes[pgErr.Code]
		return ok
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		_, ok := structuralCodes[string(pqErr.Code)]
		return ok
	}
	msg := strings.ToLower(err.Error())
	for _, s := range sqliteStructural {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// IsUniqueViolation reports whether err is a unique or primary key violation.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
