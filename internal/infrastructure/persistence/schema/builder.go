package schema

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Record maps logical field names to values. A nil or blank value counts as
// not supplied.
type Record map[string]any

// Statement is a parameterised SQL statement using '?' placeholders.
type Statement struct {
	SQL   string
	Args  []any
	Table string
	// Columns are the physical columns written by an INSERT or UPDATE.
	Columns []string
	// Fields are the result aliases of a SELECT, in order.
	Fields []string
}

// Condition restricts an UPDATE to rows whose field holds one of Values,
// or is NULL when OrNull is set.
type Condition struct {
	Field  string
	Values []any
	OrNull bool
}

// Builder generates statements against the live shape of a table.
type Builder struct {
	catalog  Catalog
	mappings *Mappings
	synth    *Synthesizer
	managed  map[string]struct{}
	logger   *zap.Logger
	recorder Recorder
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithManagedColumns names columns the database fills itself. They are
// never synthesized.
func WithManagedColumns(names ...string) BuilderOption {
	return func(b *Builder) {
		for _, n := range names {
			b.managed[normalizeName(n)] = struct{}{}
		}
	}
}

// WithBuilderLogger sets the logger.
func WithBuilderLogger(l *zap.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = l
	}
}

// WithBuilderRecorder sets the measurement recorder.
func WithBuilderRecorder(r Recorder) BuilderOption {
	return func(b *Builder) {
		b.recorder = r
	}
}

// NewBuilder creates a Builder.
func NewBuilder(catalog Catalog, mappings *Mappings, synth *Synthesizer, opts ...BuilderOption) *Builder {
	b := &Builder{
		catalog:  catalog,
		mappings: mappings,
		synth:    synth,
		managed:  make(map[string]struct{}),
		logger:   zap.NewNop(),
		recorder: NopRecorder{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Catalog returns the catalog the builder reads.
func (b *Builder) Catalog() Catalog {
	return b.catalog
}

// Mappings returns the field mappings the builder resolves.
func (b *Builder) Mappings() *Mappings {
	return b.mappings
}

// BuildInsert resolves every mapped field of table against the live schema,
// synthesizes values for mandatory columns the record leaves empty and then
// sweeps the remaining NOT NULL columns without default.
func (b *Builder) BuildInsert(ctx context.Context, table string, rec Record) (*Statement, error) {
	snap, mapping, err := b.prepare(ctx, table)
	if err != nil {
		return nil, err
	}

	if err := b.checkKeys(ctx, snap, mapping, table, rec); err != nil {
		return nil, err
	}

	covered := make(map[string]struct{})
	var cols []string
	var args []any

	for _, field := range mapping.Fields() {
		spec, _ := mapping.Field(field)
		col, ok := ResolveColumn(snap, spec.Candidates)
		value, supplied := lookup(rec, field)
		if !ok {
			if supplied && !IsAbsent(value) {
				b.logger.Debug("No physical column for supplied field",
					zap.String("table", table), zap.String("field", field))
			}
			continue
		}
		key := normalizeName(col.Name)
		if _, dup := covered[key]; dup {
			continue
		}
		if b.isManaged(col.Name) && IsAbsent(value) {
			covered[key] = struct{}{}
			continue
		}

		v, include, err := b.synth.Synthesize(col, value, spec.Reference || spec.Key)
		if err != nil {
			return nil, b.reject(ctx, withField(err, table, field))
		}
		covered[key] = struct{}{}
		if include {
			cols = append(cols, col.Name)
			args = append(args, v)
		}
	}

	for _, col := range snap.Columns() {
		key := normalizeName(col.Name)
		if _, done := covered[key]; done || b.isManaged(col.Name) || !col.Mandatory() {
			continue
		}
		v, err := b.synth.Placeholder(col)
		if err != nil {
			return nil, b.reject(ctx, withField(err, table, ""))
		}
		b.logger.Debug("Closing sweep filled unmapped column",
			zap.String("table", table), zap.String("column", col.Name))
		cols = append(cols, col.Name)
		args = append(args, v)
	}

	if len(cols) == 0 {
		return nil, b.reject(ctx, newError(KindMandatoryColumnUnresolved, table, "", "",
			errNoColumns))
	}

	var sql strings.Builder
	sql.WriteString("INSERT INTO ")
	sql.WriteString(QuoteIdent(snap.Table()))
	sql.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			sql.WriteString(", ")
		}
		sql.WriteString(QuoteIdent(c))
	}
	sql.WriteString(") VALUES (")
	sql.WriteString(placeholders(len(cols)))
	sql.WriteString(")")

	return &Statement{SQL: sql.String(), Args: args, Table: snap.Table(), Columns: cols}, nil
}

// BuildSelect selects fields of the row whose keyField equals keyValue.
// Fields without a physical column are returned as NULL so the row shape is
// the same for every schema variant.
func (b *Builder) BuildSelect(ctx context.Context, table string, fields []string, keyField string, keyValue any) (*Statement, error) {
	snap, mapping, err := b.prepare(ctx, table)
	if err != nil {
		return nil, err
	}
	keyCol, err := b.resolveKey(ctx, snap, mapping, table, keyField)
	if err != nil {
		return nil, err
	}

	var sql strings.Builder
	sql.WriteString("SELECT ")
	for i, field := range fields {
		if i > 0 {
			sql.WriteString(", ")
		}
		spec, _ := mapping.Field(field)
		if name, ok := Resolve(snap, spec.Candidates); ok {
			sql.WriteString(QuoteIdent(name))
		} else {
			sql.WriteString("NULL")
		}
		sql.WriteString(" AS ")
		sql.WriteString(QuoteIdent(field))
	}
	sql.WriteString(" FROM ")
	sql.WriteString(QuoteIdent(snap.Table()))
	sql.WriteString(" WHERE ")
	sql.WriteString(QuoteIdent(keyCol))
	sql.WriteString(" = ? LIMIT 1")

	return &Statement{
		SQL:    sql.String(),
		Args:   []any{keyValue},
		Table:  snap.Table(),
		Fields: append([]string(nil), fields...),
	}, nil
}

// BuildUpdate sets the resolvable fields of set on the row whose keyField
// equals keyValue, optionally guarded by conditions. Fields of set without a
// physical column are skipped; at least one must resolve. Every condition
// field must resolve.
func (b *Builder) BuildUpdate(ctx context.Context, table string, set Record, keyField string, keyValue any, conds ...Condition) (*Statement, error) {
	snap, mapping, err := b.prepare(ctx, table)
	if err != nil {
		return nil, err
	}
	keyCol, err := b.resolveKey(ctx, snap, mapping, table, keyField)
	if err != nil {
		return nil, err
	}

	var cols []string
	var args []any
	for _, field := range mapping.Fields() {
		value, ok := lookup(set, field)
		if !ok {
			continue
		}
		spec, _ := mapping.Field(field)
		col, found := ResolveColumn(snap, spec.Candidates)
		if !found {
			b.logger.Debug("Skipping update of unmapped field",
				zap.String("table", table), zap.String("field", field))
			continue
		}
		var v any
		if !IsAbsent(value) {
			var include bool
			if v, include, err = b.synth.Synthesize(col, value, spec.Reference || spec.Key); err != nil {
				return nil, b.reject(ctx, withField(err, table, field))
			}
			if !include {
				continue
			}
		} else if col.Mandatory() {
			if v, err = b.synth.Placeholder(col); err != nil {
				return nil, b.reject(ctx, withField(err, table, field))
			}
		}
		cols = append(cols, col.Name)
		args = append(args, v)
	}
	if len(cols) == 0 {
		return nil, b.reject(ctx, newError(KindMandatoryColumnUnresolved, table, "", strings.Join(recordFields(set), ","), errNoColumns))
	}

	var sql strings.Builder
	sql.WriteString("UPDATE ")
	sql.WriteString(QuoteIdent(snap.Table()))
	sql.WriteString(" SET ")
	for i, c := range cols {
		if i > 0 {
			sql.WriteString(", ")
		}
		sql.WriteString(QuoteIdent(c))
		sql.WriteString(" = ?")
	}
	sql.WriteString(" WHERE ")
	sql.WriteString(QuoteIdent(keyCol))
	sql.WriteString(" = ?")
	args = append(args, keyValue)

	for _, cond := range conds {
		spec, _ := mapping.Field(cond.Field)
		name, ok := Resolve(snap, spec.Candidates)
		if !ok {
			return nil, b.reject(ctx, newError(KindMandatoryColumnUnresolved, table, "", cond.Field, errNoColumns))
		}
		if len(cond.Values) == 0 && !cond.OrNull {
			continue
		}
		sql.WriteString(" AND (")
		if len(cond.Values) > 0 {
			sql.WriteString(QuoteIdent(name))
			sql.WriteString(" IN (")
			sql.WriteString(placeholders(len(cond.Values)))
			sql.WriteString(")")
			args = append(args, cond.Values...)
		}
		if cond.OrNull {
			if len(cond.Values) > 0 {
				sql.WriteString(" OR ")
			}
			sql.WriteString(QuoteIdent(name))
			sql.WriteString(" IS NULL")
		}
		sql.WriteString(")")
	}

	return &Statement{SQL: sql.String(), Args: args, Table: snap.Table(), Columns: cols}, nil
}

// ResolveField resolves one logical field of table against the cached snapshot.
func (b *Builder) ResolveField(ctx context.Context, table, field string) (ColumnDescriptor, bool) {
	spec, ok := b.mappings.Field(table, field)
	if !ok {
		return ColumnDescriptor{}, false
	}
	return ResolveColumn(b.catalog.Describe(ctx, table), spec.Candidates)
}

func (b *Builder) prepare(ctx context.Context, table string) (*TableSnapshot, TableMapping, error) {
	mapping, ok := b.mappings.Table(table)
	if !ok {
		return nil, TableMapping{}, b.reject(ctx, newError(KindMandatoryColumnUnresolved, table, "", "", errNoMapping))
	}
	snap := b.catalog.Describe(ctx, table)
	if snap.Empty() {
		return nil, TableMapping{}, b.reject(ctx, newError(KindIntrospectionUnavailable, table, "", "", nil))
	}
	return snap, mapping, nil
}

func (b *Builder) resolveKey(ctx context.Context, snap *TableSnapshot, mapping TableMapping, table, keyField string) (string, error) {
	spec, _ := mapping.Field(keyField)
	name, ok := Resolve(snap, spec.Candidates)
	if !ok {
		return "", b.reject(ctx, newError(KindNoIdentifierColumn, table, "", keyField, nil))
	}
	return name, nil
}

// checkKeys rejects an insert whose identifier has no column in the live
// table or no value in rec. Identifiers are never synthesized.
func (b *Builder) checkKeys(ctx context.Context, snap *TableSnapshot, mapping TableMapping, table string, rec Record) error {
	for _, field := range mapping.KeyFields() {
		spec, _ := mapping.Field(field)
		col, ok := ResolveColumn(snap, spec.Candidates)
		if !ok {
			return b.reject(ctx, newError(KindNoIdentifierColumn, table, "", field, nil))
		}
		if value, _ := lookup(rec, field); IsAbsent(value) {
			return b.reject(ctx, newError(KindMandatoryColumnUnresolved, table, col.Name, field, errNoKeyValue))
		}
	}
	return nil
}

func (b *Builder) isManaged(column string) bool {
	_, ok := b.managed[normalizeName(column)]
	return ok
}

func (b *Builder) reject(ctx context.Context, err *Error) error {
	b.recorder.StatementRejected(ctx, err.Table, err.Kind)
	b.logger.Warn("Statement rejected",
		zap.String("table", err.Table),
		zap.String("kind", string(err.Kind)),
		zap.String("column", err.Column),
		zap.String("field", err.Field),
	)
	return err
}

func withField(err error, table, field string) *Error {
	se, ok := err.(*Error)
	if !ok {
		return newError(KindValueCoercionFailure, table, "", field, err)
	}
	if se.Field == "" {
		se.Field = field
	}
	if se.Table == "" {
		se.Table = table
	}
	return se
}

func lookup(rec Record, field string) (any, bool) {
	if v, ok := rec[field]; ok {
		return v, true
	}
	for k, v := range rec {
		if strings.EqualFold(k, field) {
			return v, true
		}
	}
	return nil, false
}

func recordFields(rec Record) []string {
	out := make([]string, 0, len(rec))
	for k := range rec {
		out = append(out, k)
	}
	return out
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
