package invoicing

import (
	"context"

	"github.com/cfdi/backend/internal/domain/fiscal"
	"github.com/cfdi/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// QueryService reads documents through the storage fallback chain
type QueryService struct {
	reader fiscal.DocumentReader
	logger *zap.Logger
}

// NewQueryService creates a new QueryService
func NewQueryService(reader fiscal.DocumentReader, logger *zap.Logger) *QueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryService{reader: reader, logger: logger}
}

// GetDocument returns a document by kind and fiscal UUID
func (s *QueryService) GetDocument(ctx context.Context, kind fiscal.DocumentKind, externalID string) (_ *DocumentResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "query", "document",
		telemetry.WithAttribute(telemetry.SpanAttrKind, kind.String()),
		telemetry.WithAttribute(telemetry.SpanAttrExternalID, externalID))
	defer func() { telemetry.EndSpan(span, err) }()

	id, err := fiscal.NormalizeExternalID(externalID)
	if err != nil {
		return nil, err
	}
	view, err := s.reader.FetchByExternalID(ctx, kind, id)
	if err != nil {
		return nil, translateError(err)
	}
	telemetry.SetAttribute(span, "cfdi.source", string(view.Source))
	if view.Source != fiscal.SourcePrimary {
		s.logger.Info("Document served from fallback tier",
			zap.String("kind", kind.String()),
			zap.String("external_id", id),
			zap.String("source", string(view.Source)),
			zap.String("table", view.SourceTable),
		)
	}
	resp := ToDocumentResponse(view)
	return &resp, nil
}
