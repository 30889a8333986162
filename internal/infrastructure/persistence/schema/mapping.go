package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// FieldSpec lists the physical candidates for one logical field.
type FieldSpec struct {
	Candidates []string `mapstructure:"candidates"`
	// Reference marks a relational link to another entity. Reference values
	// are never synthesized.
	Reference bool `mapstructure:"reference"`
	// Key marks the identifier of the row. An insert without a key column or
	// a key value is rejected.
	Key bool `mapstructure:"key"`
}

// TableMapping is the logical field set of one table.
type TableMapping struct {
	fields map[string]FieldSpec
	order  []string
}

// Field returns the spec of a logical field.
func (t TableMapping) Field(name string) (FieldSpec, bool) {
	f, ok := t.fields[strings.ToLower(name)]
	return f, ok
}

// KeyFields returns the identifier fields in declaration order.
func (t TableMapping) KeyFields() []string {
	var out []string
	for _, name := range t.order {
		if t.fields[name].Key {
			out = append(out, name)
		}
	}
	return out
}

// Fields returns the logical field names in declaration order.
func (t TableMapping) Fields() []string {
	return append([]string(nil), t.order...)
}

// Mappings is the table -> logical field -> candidate configuration shared by
// the builder and the read paths. It is immutable once built.
type Mappings struct {
	tables map[string]TableMapping
}

// Table returns the mapping for a table.
func (m *Mappings) Table(table string) (TableMapping, bool) {
	if m == nil {
		return TableMapping{}, false
	}
	t, ok := m.tables[strings.ToLower(table)]
	return t, ok
}

// Field returns one field spec.
func (m *Mappings) Field(table, field string) (FieldSpec, bool) {
	t, ok := m.Table(table)
	if !ok {
		return FieldSpec{}, false
	}
	return t.Field(field)
}

// Tables returns the configured table names, sorted.
func (m *Mappings) Tables() []string {
	out := make([]string, 0, len(m.tables))
	for name := range m.tables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// MappingsBuilder assembles Mappings in declaration order.
type MappingsBuilder struct {
	tables map[string]*TableMapping
}

// NewMappingsBuilder creates an empty builder.
func NewMappingsBuilder() *MappingsBuilder {
	return &MappingsBuilder{tables: make(map[string]*TableMapping)}
}

// Field declares (or replaces) a logical field of a table.
func (b *MappingsBuilder) Field(table, field string, candidates ...string) *MappingsBuilder {
	return b.set(table, field, FieldSpec{Candidates: candidates})
}

// Reference declares a relational reference field.
func (b *MappingsBuilder) Reference(table, field string, candidates ...string) *MappingsBuilder {
	return b.set(table, field, FieldSpec{Candidates: candidates, Reference: true})
}

// Key declares the identifier field of a table.
func (b *MappingsBuilder) Key(table, field string, candidates ...string) *MappingsBuilder {
	return b.set(table, field, FieldSpec{Candidates: candidates, Key: true})
}

// CopyTable declares dst with the same fields as src. Archive tables
// typically mirror their primary table.
func (b *MappingsBuilder) CopyTable(dst, src string) *MappingsBuilder {
	t, ok := b.tables[strings.ToLower(src)]
	if !ok {
		return b
	}
	for _, name := range t.order {
		b.set(dst, name, t.fields[name])
	}
	return b
}

func (b *MappingsBuilder) set(table, field string, spec FieldSpec) *MappingsBuilder {
	table, field = strings.ToLower(table), strings.ToLower(field)
	t, ok := b.tables[table]
	if !ok {
		t = &TableMapping{fields: make(map[string]FieldSpec)}
		b.tables[table] = t
	}
	if _, exists := t.fields[field]; !exists {
		t.order = append(t.order, field)
	}
	cands := make([]string, 0, len(spec.Candidates))
	for _, c := range spec.Candidates {
		if c = normalizeName(c); c != "" {
			cands = append(cands, c)
		}
	}
	spec.Candidates = cands
	t.fields[field] = spec
	return b
}

// Build freezes the builder.
func (b *MappingsBuilder) Build() *Mappings {
	m := &Mappings{tables: make(map[string]TableMapping, len(b.tables))}
	for name, t := range b.tables {
		fields := make(map[string]FieldSpec, len(t.fields))
		for k, v := range t.fields {
			fields[k] = FieldSpec{Candidates: append([]string(nil), v.Candidates...), Reference: v.Reference, Key: v.Key}
		}
		m.tables[name] = TableMapping{fields: fields, order: append([]string(nil), t.order...)}
	}
	return m
}

type mappingFile struct {
	Tables map[string]struct {
		Fields map[string]FieldSpec `mapstructure:"fields"`
	} `mapstructure:"tables"`
}

// LoadMappings reads a TOML override file and merges it over base. Fields in
// the file replace the base declaration of the same table and field; new
// tables and fields are appended.
//
//	[tables.facturas.fields.external_id]
//	candidates = ["UUID", "FOLIO_FISCAL"]
//	key = true
func LoadMappings(path string, base *MappingsBuilder) (*Mappings, error) {
	if base == nil {
		base = NewMappingsBuilder()
	}
	if path == "" {
		return base.Build(), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read schema mappings %s: %w", path, err)
	}
	var file mappingFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("decode schema mappings %s: %w", path, err)
	}

	tables := make([]string, 0, len(file.Tables))
	for name := range file.Tables {
		tables = append(tables, name)
	}
	sort.Strings(tables)
	for _, table := range tables {
		fields := file.Tables[table].Fields
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			spec := fields[name]
			if len(spec.Candidates) == 0 {
				return nil, fmt.Errorf("schema mappings %s: %s.%s has no candidates", path, table, name)
			}
			base.set(table, name, spec)
		}
	}
	return base.Build(), nil
}
