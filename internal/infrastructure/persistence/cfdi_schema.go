package persistence

import (
	"github.com/cfdi/backend/internal/domain/fiscal"
	"github.com/cfdi/backend/internal/infrastructure/persistence/schema"
)

// Logical field names shared by document tables.
const (
	FieldExternalID              = "external_id"
	FieldSeries                  = "series"
	FieldFolio                   = "folio"
	FieldIssuerRFC               = "issuer_rfc"
	FieldReceiverRFC             = "receiver_rfc"
	FieldCustomerRef             = "customer_ref"
	FieldSubtotal                = "subtotal"
	FieldTax                     = "tax"
	FieldTotal                   = "total"
	FieldCurrency                = "currency"
	FieldContent                 = "content"
	FieldStatus                  = "status"
	FieldIssuedAt                = "issued_at"
	FieldCFDIUse                 = "cfdi_use"
	FieldPaymentMethod           = "payment_method"
	FieldPaymentForm             = "payment_form"
	FieldRelationType            = "relation_type"
	FieldTicketRef               = "ticket_ref"
	FieldStatusChangedAt         = "status_changed_at"
	FieldCancellationRequestedAt = "cancellation_requested_at"
	FieldCancelledAt             = "cancelled_at"

	// payroll
	FieldEmployeeRef = "employee_ref"
	FieldPeriodStart = "period_start"
	FieldPeriodEnd   = "period_end"
	FieldPaidDays    = "paid_days"
	FieldPerceptions = "perceptions"
	FieldDeductions  = "deductions"

	// payment complement
	FieldPaymentDate = "payment_date"
)

// Logical field names of concept, link and ticket tables.
const (
	FieldInvoiceRef  = "invoice_ref"
	FieldLineNumber  = "line_number"
	FieldProductKey  = "product_key"
	FieldUnitKey     = "unit_key"
	FieldDescription = "description"
	FieldQuantity    = "quantity"
	FieldUnitPrice   = "unit_price"
	FieldAmount      = "amount"

	FieldDerivedID       = "derived_id"
	FieldOriginID        = "origin_id"
	FieldInstallment     = "installment"
	FieldPreviousBalance = "previous_balance"
	FieldPaid            = "paid"
	FieldRemaining       = "remaining"

	FieldTicketID   = "ticket_id"
	FieldInvoiced   = "invoiced"
	FieldInvoicedAt = "invoiced_at"
)

// Table names of the reference deployment.
const (
	TableInvoices           = "facturas"
	TableInvoiceConcepts    = "conceptos_factura"
	TableInvoicesArchive    = "facturas_historico"
	TableCreditNotes        = "notas_credito"
	TableCreditNoteLinks    = "notas_credito_relacion"
	TableCreditNotesArchive = "notas_credito_historico"
	TablePayrollReceipts    = "recibos_nomina"
	TablePayrollArchive     = "recibos_nomina_historico"
	TablePaymentComplements = "complementos_pago"
	TablePaymentLinks       = "complementos_pago_relacion"
	TablePaymentArchive     = "complementos_pago_historico"
	TableDocumentArchive    = "cfdi_archivo"
	TableTickets            = "tickets"
)

// documentFields are read back by the fallback chain.
var documentFields = []string{
	FieldExternalID, FieldSeries, FieldFolio, FieldIssuerRFC, FieldReceiverRFC,
	FieldSubtotal, FieldTax, FieldTotal, FieldCurrency, FieldStatus, FieldIssuedAt, FieldContent,
}

// reducedFields is the minimal projection used when the full projection no
// longer matches the primary table.
var reducedFields = []string{
	FieldExternalID, FieldSeries, FieldFolio, FieldTotal, FieldStatus, FieldContent,
}

// KindTables locates the storage of one document kind.
type KindTables struct {
	Primary  string
	Archives []string
	// Links holds derived-to-origin rows; empty for kinds without origins.
	Links string
	// Lines holds line items; empty for kinds without them.
	Lines string
}

// Registry maps document kinds to their tables.
type Registry struct {
	kinds map[fiscal.DocumentKind]KindTables
}

// NewRegistry creates a registry from explicit table sets.
func NewRegistry(kinds map[fiscal.DocumentKind]KindTables) Registry {
	r := Registry{kinds: make(map[fiscal.DocumentKind]KindTables, len(kinds))}
	for k, v := range kinds {
		v.Archives = append([]string(nil), v.Archives...)
		r.kinds[k] = v
	}
	return r
}

// DefaultRegistry returns the table layout of the reference deployment.
// Every kind falls back to the shared archive last.
func DefaultRegistry() Registry {
	return NewRegistry(map[fiscal.DocumentKind]KindTables{
		fiscal.KindInvoice: {
			Primary:  TableInvoices,
			Archives: []string{TableInvoicesArchive, TableDocumentArchive},
			Lines:    TableInvoiceConcepts,
		},
		fiscal.KindCreditNote: {
			Primary:  TableCreditNotes,
			Archives: []string{TableCreditNotesArchive, TableDocumentArchive},
			Links:    TableCreditNoteLinks,
		},
		fiscal.KindPayrollReceipt: {
			Primary:  TablePayrollReceipts,
			Archives: []string{TablePayrollArchive, TableDocumentArchive},
		},
		fiscal.KindPaymentComplement: {
			Primary:  TablePaymentComplements,
			Archives: []string{TablePaymentArchive, TableDocumentArchive},
			Links:    TablePaymentLinks,
		},
	})
}

// Tables returns the tables of kind.
func (r Registry) Tables(kind fiscal.DocumentKind) (KindTables, bool) {
	t, ok := r.kinds[kind]
	return t, ok
}

// DefaultMappings declares the candidate columns observed across deployments.
// Candidate order is preference order.
func DefaultMappings() *schema.MappingsBuilder {
	b := schema.NewMappingsBuilder()

	declareDocument(b, TableInvoices)
	b.Field(TableInvoices, FieldTicketRef, "ID_TICKET", "TICKET", "FOLIO_TICKET")

	declareDocument(b, TableCreditNotes)
	b.Field(TableCreditNotes, FieldRelationType, "TIPO_RELACION", "CVE_TIPO_RELACION")

	declareDocument(b, TablePayrollReceipts)
	b.Reference(TablePayrollReceipts, FieldEmployeeRef, "ID_EMPLEADO", "EMPLEADO_ID", "NUM_EMPLEADO").
		Field(TablePayrollReceipts, FieldPeriodStart, "FECHA_INICIAL_PAGO", "FECHA_INICIO", "PERIODO_INICIO").
		Field(TablePayrollReceipts, FieldPeriodEnd, "FECHA_FINAL_PAGO", "FECHA_FIN", "PERIODO_FIN").
		Field(TablePayrollReceipts, FieldPaidDays, "DIAS_PAGADOS", "NUM_DIAS_PAGADOS").
		Field(TablePayrollReceipts, FieldPerceptions, "TOTAL_PERCEPCIONES", "PERCEPCIONES").
		Field(TablePayrollReceipts, FieldDeductions, "TOTAL_DEDUCCIONES", "DEDUCCIONES")

	declareDocument(b, TablePaymentComplements)
	b.Field(TablePaymentComplements, FieldPaymentDate, "FECHA_PAGO", "FECHA_DEPOSITO")

	b.CopyTable(TableInvoicesArchive, TableInvoices).
		CopyTable(TableCreditNotesArchive, TableCreditNotes).
		CopyTable(TablePayrollArchive, TablePayrollReceipts).
		CopyTable(TablePaymentArchive, TablePaymentComplements)
	declareDocument(b, TableDocumentArchive)

	b.Reference(TableInvoiceConcepts, FieldInvoiceRef, "UUID_FACTURA", "ID_FACTURA", "FACTURA_UUID").
		Field(TableInvoiceConcepts, FieldLineNumber, "NUM_LINEA", "PARTIDA", "RENGLON").
		Field(TableInvoiceConcepts, FieldProductKey, "CLAVE_PROD_SERV", "CLAVE_PRODUCTO").
		Field(TableInvoiceConcepts, FieldUnitKey, "CLAVE_UNIDAD", "UNIDAD").
		Field(TableInvoiceConcepts, FieldDescription, "DESCRIPCION", "CONCEPTO").
		Field(TableInvoiceConcepts, FieldQuantity, "CANTIDAD").
		Field(TableInvoiceConcepts, FieldUnitPrice, "VALOR_UNITARIO", "PRECIO_UNITARIO").
		Field(TableInvoiceConcepts, FieldAmount, "IMPORTE").
		Field(TableInvoiceConcepts, FieldTax, "IVA", "IMPUESTO", "IMPORTE_IMPUESTO")

	declareLinks(b, TableCreditNoteLinks, "UUID_NOTA_CREDITO", "UUID_NOTA")
	declareLinks(b, TablePaymentLinks, "UUID_COMPLEMENTO", "UUID_PAGO")

	b.Key(TableTickets, FieldTicketID, "ID_TICKET", "FOLIO_TICKET", "TICKET").
		Reference(TableTickets, FieldInvoiceRef, "UUID_FACTURA", "ID_FACTURA", "FACTURA").
		Field(TableTickets, FieldInvoiced, "FACTURADO", "ES_FACTURADO").
		Field(TableTickets, FieldInvoicedAt, "FECHA_FACTURACION", "FECHA_FACTURA")

	return b
}

func declareDocument(b *schema.MappingsBuilder, table string) {
	b.Key(table, FieldExternalID, "UUID", "FOLIO_FISCAL", "UUID_CFDI", "UUID_TIMBRE").
		Field(table, FieldSeries, "SERIE").
		Field(table, FieldFolio, "FOLIO", "FOLIO_INTERNO").
		Field(table, FieldIssuerRFC, "RFC_EMISOR", "EMISOR_RFC").
		Field(table, FieldReceiverRFC, "RFC_RECEPTOR", "RECEPTOR_RFC").
		Reference(table, FieldCustomerRef, "ID_CLIENTE", "CLIENTE_ID", "CVE_CLIENTE").
		Field(table, FieldSubtotal, "SUBTOTAL", "SUB_TOTAL").
		Field(table, FieldTax, "IVA", "TOTAL_IMPUESTOS", "IMPUESTOS").
		Field(table, FieldTotal, "TOTAL", "IMPORTE_TOTAL").
		Field(table, FieldCurrency, "MONEDA").
		Field(table, FieldContent, "XML", "XML_CFDI", "CFDI_XML", "CONTENIDO_XML").
		Field(table, FieldStatus, "ESTATUS", "STATUS", "ESTADO").
		Field(table, FieldIssuedAt, "FECHA_EMISION", "FECHA_TIMBRADO", "FECHA").
		Field(table, FieldCFDIUse, "USO_CFDI").
		Field(table, FieldPaymentMethod, "METODO_PAGO").
		Field(table, FieldPaymentForm, "FORMA_PAGO").
		Field(table, FieldStatusChangedAt, "FECHA_ESTATUS", "FECHA_CAMBIO_ESTATUS").
		Field(table, FieldCancellationRequestedAt, "FECHA_SOLICITUD_CANCELACION").
		Field(table, FieldCancelledAt, "FECHA_CANCELACION")
}

func declareLinks(b *schema.MappingsBuilder, table string, derived ...string) {
	b.Reference(table, FieldDerivedID, derived...).
		Reference(table, FieldOriginID, "UUID_FACTURA", "UUID_RELACIONADO", "UUID_ORIGEN").
		Field(table, FieldRelationType, "TIPO_RELACION").
		Field(table, FieldAmount, "IMPORTE", "MONTO").
		Field(table, FieldInstallment, "NUM_PARCIALIDAD", "PARCIALIDAD").
		Field(table, FieldPreviousBalance, "SALDO_ANTERIOR", "IMP_SALDO_ANT").
		Field(table, FieldPaid, "IMPORTE_PAGADO", "IMP_PAGADO").
		Field(table, FieldRemaining, "SALDO_INSOLUTO", "IMP_SALDO_INSOLUTO")
}
