package invoicing

import (
	"context"
	"fmt"
	"strings"

	"github.com/cfdi/backend/internal/domain/shared"
	"github.com/cfdi/backend/internal/infrastructure/persistence/schema"
	"go.uber.org/zap"
)

// SchemaService exposes the live table snapshots used by the adaptive
// persistence layer. Only tables with a field mapping can be inspected.
type SchemaService struct {
	catalog  schema.Catalog
	mappings *schema.Mappings
	logger   *zap.Logger
}

// NewSchemaService creates a new SchemaService
func NewSchemaService(catalog schema.Catalog, mappings *schema.Mappings, logger *zap.Logger) *SchemaService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchemaService{catalog: catalog, mappings: mappings, logger: logger}
}

// Tables lists the mapped tables
func (s *SchemaService) Tables() []string {
	return s.mappings.Tables()
}

// Describe returns the cached snapshot of a table
func (s *SchemaService) Describe(ctx context.Context, table string) (*TableSchemaResponse, error) {
	mapping, err := s.mapping(table)
	if err != nil {
		return nil, err
	}
	return s.response(table, mapping, s.catalog.Describe(ctx, table))
}

// Refresh drops the cached snapshot and reads the catalog again
func (s *SchemaService) Refresh(ctx context.Context, table string) (*TableSchemaResponse, error) {
	mapping, err := s.mapping(table)
	if err != nil {
		return nil, err
	}
	s.catalog.Invalidate(table)
	snap := s.catalog.Refresh(ctx, table)
	s.logger.Info("Table snapshot refreshed", zap.String("table", table), zap.Int("columns", snap.Len()))
	return s.response(table, mapping, snap)
}

func (s *SchemaService) mapping(table string) (schema.TableMapping, error) {
	mapping, ok := s.mappings.Table(strings.TrimSpace(table))
	if !ok {
		return schema.TableMapping{}, shared.NewDomainError("NOT_FOUND", fmt.Sprintf("Table %q is not mapped", table))
	}
	return mapping, nil
}

func (s *SchemaService) response(table string, mapping schema.TableMapping, snap *schema.TableSnapshot) (*TableSchemaResponse, error) {
	if snap.Empty() {
		return nil, shared.NewDomainError("STORAGE_UNAVAILABLE", fmt.Sprintf("Table %s could not be introspected", table))
	}
	resp := &TableSchemaResponse{Table: snap.Table()}
	for _, c := range snap.Columns() {
		resp.Columns = append(resp.Columns, ColumnResponse{
			Name:       c.Name,
			DataType:   c.DataType,
			Category:   string(c.Category),
			MaxLength:  c.MaxLength,
			Nullable:   c.Nullable,
			HasDefault: c.HasDefault,
			Mandatory:  c.Mandatory(),
		})
	}
	for _, f := range mapping.Fields() {
		spec, _ := mapping.Field(f)
		column, _ := schema.Resolve(snap, spec.Candidates)
		resp.Fields = append(resp.Fields, FieldResolutionResponse{
			Field:      f,
			Candidates: spec.Candidates,
			Column:     column,
			Reference:  spec.Reference,
		})
	}
	return resp, nil
}
