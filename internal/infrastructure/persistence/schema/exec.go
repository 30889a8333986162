package schema

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Row is one result row keyed by the statement's field aliases.
type Row map[string]any

// String returns a field as trimmed text, "" for NULL.
func (r Row) String(field string) string {
	switch v := r[field].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []byte:
		return strings.TrimSpace(string(v))
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Decimal returns a numeric field, zero for NULL or non-numeric content.
func (r Row) Decimal(field string) decimal.Decimal {
	if r[field] == nil {
		return decimal.Zero
	}
	d, err := toDecimal(r[field])
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Time returns a date or timestamp field.
func (r Row) Time(field string) (time.Time, bool) {
	if r[field] == nil {
		return time.Time{}, false
	}
	t, err := toTime(r[field])
	return t, err == nil
}

// WallClock reads the calendar fields of t as a reading taken in loc.
func WallClock(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.Date()
	h, mi, sec := t.Clock()
	return time.Date(y, m, d, h, mi, sec, t.Nanosecond(), loc)
}

// Merge fills fields that are empty in r from other. It returns r.
func (r Row) Merge(other Row) Row {
	for k, v := range other {
		if IsAbsent(r[k]) && !IsAbsent(v) {
			r[k] = v
		}
	}
	return r
}

// QueryRow runs a SELECT statement and returns its first row. ok is false
// when no row matched. Structural failures come back as
// KindRemoteProcedureBroken.
func QueryRow(ctx context.Context, db *gorm.DB, stmt *Statement) (Row, bool, error) {
	rows, err := db.WithContext(ctx).Raw(stmt.SQL, stmt.Args...).Rows()
	if err != nil {
		return nil, false, Classify(stmt.Table, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, false, Classify(stmt.Table, err)
		}
		return nil, false, nil
	}

	names, err := rows.Columns()
	if err != nil {
		return nil, false, Classify(stmt.Table, err)
	}
	values := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, false, Classify(stmt.Table, err)
	}

	row := make(Row, len(names))
	for i, name := range names {
		row[name] = values[i]
	}
	// some drivers fold alias case; key by the requested aliases as well
	for _, f := range stmt.Fields {
		if _, ok := row[f]; ok {
			continue
		}
		for i, name := range names {
			if strings.EqualFold(name, f) {
				row[f] = values[i]
				break
			}
		}
	}
	return row, true, nil
}

// Exec runs a write statement and returns the affected row count.
func Exec(ctx context.Context, db *gorm.DB, stmt *Statement) (int64, error) {
	res := db.WithContext(ctx).Exec(stmt.SQL, stmt.Args...)
	if res.Error != nil {
		return 0, Classify(stmt.Table, res.Error)
	}
	return res.RowsAffected, nil
}
