// Package schema implements schema-adaptive SQL generation: catalog
// introspection, logical-to-physical column resolution, value synthesis for
// mandatory columns and statement building over whatever shape a table has
// in the connected database.
package schema

import "strings"

// TypeCategory is the coarse type family of a physical column.
type TypeCategory string

const (
	CategoryText      TypeCategory = "text"
	CategoryNumeric   TypeCategory = "numeric"
	CategoryDate      TypeCategory = "date"
	CategoryTimestamp TypeCategory = "timestamp"
	CategoryLargeText TypeCategory = "large_text"
	CategoryBinary    TypeCategory = "binary"
	CategoryBoolean   TypeCategory = "boolean"
	CategoryUnknown   TypeCategory = "unknown"
)

// ColumnDescriptor describes one physical column as reported by the catalog.
type ColumnDescriptor struct {
	Table      string
	Name       string // physical name, original case
	DataType   string // raw catalog type
	Category   TypeCategory
	MaxLength  int // 0 when unbounded or unknown
	Nullable   bool
	HasDefault bool // server default, identity or generated column
}

// Mandatory reports whether an INSERT omitting this column would fail.
func (c ColumnDescriptor) Mandatory() bool {
	return !c.Nullable && !c.HasDefault
}

// Zoned reports whether a temporal column stores an absolute instant. Other
// date and timestamp columns hold wall clock readings.
func (c ColumnDescriptor) Zoned() bool {
	t := strings.ToLower(c.DataType)
	return strings.Contains(t, "with time zone") ||
		strings.Contains(t, "timestamptz") ||
		strings.Contains(t, "datetimeoffset")
}

// TableSnapshot is the set of columns a table had when it was introspected.
// Lookups are case-insensitive. An empty snapshot means introspection was
// unavailable, not that the table has no columns.
type TableSnapshot struct {
	table   string
	columns map[string]ColumnDescriptor
	order   []string
}

// NewTableSnapshot builds a snapshot from descriptors in catalog order.
// Later duplicates of the same name are ignored.
func NewTableSnapshot(table string, cols []ColumnDescriptor) *TableSnapshot {
	s := &TableSnapshot{
		table:   table,
		columns: make(map[string]ColumnDescriptor, len(cols)),
		order:   make([]string, 0, len(cols)),
	}
	for _, c := range cols {
		key := normalizeName(c.Name)
		if key == "" {
			continue
		}
		if _, dup := s.columns[key]; dup {
			continue
		}
		if c.Table == "" {
			c.Table = table
		}
		s.columns[key] = c
		s.order = append(s.order, key)
	}
	return s
}

// Table returns the physical table name the snapshot was taken from.
func (s *TableSnapshot) Table() string {
	if s == nil {
		return ""
	}
	return s.table
}

// Empty reports whether the snapshot carries no columns.
func (s *TableSnapshot) Empty() bool {
	return s == nil || len(s.columns) == 0
}

// Len returns the number of columns.
func (s *TableSnapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.columns)
}

// Lookup finds a column by name, ignoring case.
func (s *TableSnapshot) Lookup(name string) (ColumnDescriptor, bool) {
	if s == nil {
		return ColumnDescriptor{}, false
	}
	c, ok := s.columns[normalizeName(name)]
	return c, ok
}

// Has reports whether the column exists.
func (s *TableSnapshot) Has(name string) bool {
	_, ok := s.Lookup(name)
	return ok
}

// Columns returns the descriptors in catalog order.
func (s *TableSnapshot) Columns() []ColumnDescriptor {
	if s == nil {
		return nil
	}
	out := make([]ColumnDescriptor, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.columns[key])
	}
	return out
}

func normalizeName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
