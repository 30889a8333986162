package schema

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/cfdi/backend/internal/infrastructure/logger"
)

// Catalog supplies table snapshots.
type Catalog interface {
	// Describe returns the cached snapshot, introspecting on first use.
	// An empty snapshot means introspection was unavailable.
	Describe(ctx context.Context, table string) *TableSnapshot
	// Refresh bypasses the cache, and stores the result when it is usable.
	Refresh(ctx context.Context, table string) *TableSnapshot
	// Invalidate drops the cached snapshot of a table.
	Invalidate(table string)
}

// CatalogIntrospector is the database-backed Catalog. Snapshots are cached
// for the life of the process; concurrent first reads of a table share one
// catalog query. Unavailable (empty) results are not cached.
type CatalogIntrospector struct {
	db       *gorm.DB
	dialect  CatalogDialect
	logger   *zap.Logger
	recorder Recorder
	cache    sync.Map // upper(table) -> *TableSnapshot
	group    singleflight.Group
}

// IntrospectorOption configures a CatalogIntrospector.
type IntrospectorOption func(*CatalogIntrospector)

// WithIntrospectorLogger sets the logger.
func WithIntrospectorLogger(l *zap.Logger) IntrospectorOption {
	return func(i *CatalogIntrospector) {
		i.logger = l
	}
}

// WithRecorder sets the measurement recorder.
func WithRecorder(r Recorder) IntrospectorOption {
	return func(i *CatalogIntrospector) {
		i.recorder = r
	}
}

// NewCatalogIntrospector creates an introspector over db.
func NewCatalogIntrospector(db *gorm.DB, dialect CatalogDialect, opts ...IntrospectorOption) *CatalogIntrospector {
	i := &CatalogIntrospector{
		db:       db,
		dialect:  dialect,
		logger:   zap.NewNop(),
		recorder: NopRecorder{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Describe implements Catalog.
func (i *CatalogIntrospector) Describe(ctx context.Context, table string) *TableSnapshot {
	key := normalizeName(table)
	if v, ok := i.cache.Load(key); ok {
		return v.(*TableSnapshot)
	}
	v, _, _ := i.group.Do(key, func() (any, error) {
		if v, ok := i.cache.Load(key); ok {
			return v, nil
		}
		snap := i.introspect(ctx, table)
		if !snap.Empty() {
			i.cache.Store(key, snap)
		}
		return snap, nil
	})
	return v.(*TableSnapshot)
}

// Refresh implements Catalog.
func (i *CatalogIntrospector) Refresh(ctx context.Context, table string) *TableSnapshot {
	key := normalizeName(table)
	v, _, _ := i.group.Do("refresh:"+key, func() (any, error) {
		snap := i.introspect(ctx, table)
		if !snap.Empty() {
			i.cache.Store(key, snap)
		}
		return snap, nil
	})
	return v.(*TableSnapshot)
}

// Invalidate implements Catalog.
func (i *CatalogIntrospector) Invalidate(table string) {
	i.cache.Delete(normalizeName(table))
}

// Cached lists the tables that currently have a snapshot.
func (i *CatalogIntrospector) Cached() []string {
	var out []string
	i.cache.Range(func(k, _ any) bool {
		out = append(out, k.(string))
		return true
	})
	return out
}

func (i *CatalogIntrospector) introspect(ctx context.Context, table string) *TableSnapshot {
	qctx := logger.WithCatalogQuery(ctx)
	log := i.logger.With(zap.String("table", table), zap.String("dialect", i.dialect.Name()))

	cols, err := i.dialect.Primary(qctx, i.db, table)
	if err == nil && len(cols) > 0 {
		i.recorder.Introspected(ctx, table, SourcePrimary)
		return NewTableSnapshot(tableNameOf(table, cols), cols)
	}
	if err != nil {
		log.Warn("Primary catalog view unavailable, trying secondary", zap.Error(err))
	}

	cols, err = i.dialect.Secondary(qctx, i.db, table)
	if err == nil && len(cols) > 0 {
		i.recorder.Introspected(ctx, table, SourceSecondary)
		return NewTableSnapshot(tableNameOf(table, cols), cols)
	}
	if err != nil {
		log.Warn("Secondary catalog view unavailable", zap.Error(err))
	}

	i.recorder.Introspected(ctx, table, SourceUnavailable)
	log.Warn("Schema introspection unavailable")
	return NewTableSnapshot(table, nil)
}

// tableNameOf prefers the catalog spelling of the table name.
func tableNameOf(requested string, cols []ColumnDescriptor) string {
	for _, c := range cols {
		if c.Table != "" && strings.EqualFold(c.Table, requested) {
			return c.Table
		}
	}
	return requested
}

// StaticCatalog serves fixed snapshots. It backs tests and tools that work
// from a known schema.
type StaticCatalog struct {
	mu        sync.RWMutex
	snapshots map[string]*TableSnapshot
}

// NewStaticCatalog creates a StaticCatalog.
func NewStaticCatalog(snapshots ...*TableSnapshot) *StaticCatalog {
	c := &StaticCatalog{snapshots: make(map[string]*TableSnapshot)}
	for _, s := range snapshots {
		c.Put(s)
	}
	return c
}

// Put replaces the snapshot of s.Table().
func (c *StaticCatalog) Put(s *TableSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots[normalizeName(s.Table())] = s
}

func (c *StaticCatalog) Describe(_ context.Context, table string) *TableSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.snapshots[normalizeName(table)]; ok {
		return s
	}
	return NewTableSnapshot(table, nil)
}

func (c *StaticCatalog) Refresh(ctx context.Context, table string) *TableSnapshot {
	return c.Describe(ctx, table)
}

func (c *StaticCatalog) Invalidate(string) {}
