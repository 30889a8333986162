package invoicing

import (
	"errors"
	"fmt"

	"github.com/cfdi/backend/internal/domain/shared"
	"github.com/cfdi/backend/internal/infrastructure/lock"
	"github.com/cfdi/backend/internal/infrastructure/persistence/schema"
)

// translateError maps persistence and locking failures onto domain error
// codes. Domain errors and unclassified errors pass through unchanged.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, lock.ErrNotObtained) {
		return shared.NewDomainError("CONCURRENCY_CONFLICT", "Document is being processed by another request")
	}

	var schemaErr *schema.Error
	if !errors.As(err, &schemaErr) {
		return err
	}
	switch schemaErr.Kind {
	case schema.KindNotFound:
		return shared.NewDomainError("NOT_FOUND", "Document not found")
	case schema.KindMandatoryColumnUnresolved, schema.KindValueCoercionFailure, schema.KindNoIdentifierColumn:
		return shared.NewDomainError("PERSISTENCE_REJECTED", rejectionMessage(schemaErr))
	case schema.KindIntrospectionUnavailable, schema.KindRemoteProcedureBroken:
		return shared.NewDomainError("STORAGE_UNAVAILABLE",
			fmt.Sprintf("Table %s is not available", schemaErr.Table))
	}
	return err
}

func rejectionMessage(e *schema.Error) string {
	switch e.Kind {
	case schema.KindMandatoryColumnUnresolved:
		if e.Field != "" {
			return fmt.Sprintf("Table %s requires %s (column %s), which was not provided", e.Table, e.Field, e.Column)
		}
		return fmt.Sprintf("Table %s requires column %s, which cannot be filled", e.Table, e.Column)
	case schema.KindValueCoercionFailure:
		return fmt.Sprintf("Value for %s does not fit column %s.%s", e.Field, e.Table, e.Column)
	case schema.KindNoIdentifierColumn:
		return fmt.Sprintf("Table %s has no usable identifier column", e.Table)
	}
	return "Document could not be saved"
}

func isNotFound(err error) bool {
	return errors.Is(err, schema.ErrNotFound) || errors.Is(err, shared.ErrNotFound)
}
