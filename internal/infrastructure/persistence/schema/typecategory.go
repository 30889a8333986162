package schema

import (
	"strconv"
	"strings"
)

var categoryPrefixes = []struct {
	prefix   string
	category TypeCategory
}{
	// order matters: longer and more specific prefixes first
	{"timestamp", CategoryTimestamp},
	{"datetime", CategoryTimestamp},
	{"smalldatetime", CategoryTimestamp},
	{"date", CategoryDate},
	{"character varying", CategoryText},
	{"character", CategoryText},
	{"nvarchar", CategoryText},
	{"varchar", CategoryText},
	{"nchar", CategoryText},
	{"bpchar", CategoryText},
	{"char", CategoryText},
	{"uuid", CategoryText},
	{"name", CategoryText},
	{"citext", CategoryLargeText},
	{"tinytext", CategoryText},
	{"text", CategoryLargeText},
	{"mediumtext", CategoryLargeText},
	{"longtext", CategoryLargeText},
	{"clob", CategoryLargeText},
	{"nclob", CategoryLargeText},
	{"xml", CategoryLargeText},
	{"jsonb", CategoryLargeText},
	{"json", CategoryLargeText},
	{"bytea", CategoryBinary},
	{"blob", CategoryBinary},
	{"varbinary", CategoryBinary},
	{"binary", CategoryBinary},
	{"raw", CategoryBinary},
	{"boolean", CategoryBoolean},
	{"bool", CategoryBoolean},
	{"double precision", CategoryNumeric},
	{"numeric", CategoryNumeric},
	{"decimal", CategoryNumeric},
	{"number", CategoryNumeric},
	{"money", CategoryNumeric},
	{"bigint", CategoryNumeric},
	{"smallint", CategoryNumeric},
	{"tinyint", CategoryNumeric},
	{"interval", CategoryUnknown},
	{"integer", CategoryNumeric},
	{"int", CategoryNumeric},
	{"real", CategoryNumeric},
	{"float", CategoryNumeric},
	{"double", CategoryNumeric},
	{"bigserial", CategoryNumeric},
	{"serial", CategoryNumeric},
}

// CategoryOf maps a catalog data type (e.g. "character varying(40)",
// "NUMERIC(12,2)", "timestamp without time zone") to its TypeCategory.
func CategoryOf(dataType string) TypeCategory {
	t := strings.ToLower(strings.TrimSpace(dataType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	if t == "" {
		return CategoryUnknown
	}
	for _, p := range categoryPrefixes {
		if strings.HasPrefix(t, p.prefix) {
			return p.category
		}
	}
	return CategoryUnknown
}

// lengthOf extracts the declared length of a text type, e.g. 40 from
// "varchar(40)". It returns 0 when no length is declared.
func lengthOf(dataType string) int {
	open := strings.IndexByte(dataType, '(')
	if open < 0 {
		return 0
	}
	rest := dataType[open+1:]
	end := strings.IndexAny(rest, ",)")
	if end < 0 {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(rest[:end]))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// describeColumn builds a descriptor from raw catalog values.
func describeColumn(table, name, dataType string, maxLength int, nullable, hasDefault bool) ColumnDescriptor {
	category := CategoryOf(dataType)
	if maxLength == 0 && category == CategoryText {
		maxLength = lengthOf(dataType)
	}
	return ColumnDescriptor{
		Table:      table,
		Name:       name,
		DataType:   dataType,
		Category:   category,
		MaxLength:  maxLength,
		Nullable:   nullable,
		HasDefault: hasDefault,
	}
}
