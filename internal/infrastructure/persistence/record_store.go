package persistence

import (
	"context"
	"fmt"

	"github.com/cfdi/backend/internal/infrastructure/persistence/schema"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Write is one logical record destined for a table.
type Write struct {
	Table  string
	Record schema.Record
}

// RecordStore inserts logical records through the adaptive builder.
type RecordStore struct {
	db      *gorm.DB
	builder *schema.Builder
	logger  *zap.Logger
}

// NewRecordStore creates a RecordStore.
func NewRecordStore(db *gorm.DB, builder *schema.Builder, logger *zap.Logger) *RecordStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordStore{db: db, builder: builder, logger: logger}
}

// Insert writes one record.
func (s *RecordStore) Insert(ctx context.Context, table string, rec schema.Record) error {
	return s.InsertAll(ctx, Write{Table: table, Record: rec})
}

// InsertAll builds every statement first and then executes them in one
// transaction. A rejected statement leaves the database untouched.
func (s *RecordStore) InsertAll(ctx context.Context, writes ...Write) error {
	stmts := make([]*schema.Statement, 0, len(writes))
	for _, w := range writes {
		stmt, err := s.builder.BuildInsert(ctx, w.Table, w.Record)
		if err != nil {
			return err
		}
		stmts = append(stmts, stmt)
	}
	if len(stmts) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, stmt := range stmts {
			if _, err := schema.Exec(ctx, tx, stmt); err != nil {
				s.logger.Warn("Insert failed",
					zap.String("table", stmt.Table),
					zap.Strings("columns", stmt.Columns),
					zap.Error(err),
				)
				return fmt.Errorf("insert into %s: %w", stmt.Table, err)
			}
		}
		return nil
	})
}
