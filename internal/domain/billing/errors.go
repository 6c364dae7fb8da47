package billing

import "github.com/wasteline/backend/internal/domain/shared"

// Ledger errors returned by repositories on unique-key violations
var (
	// ErrInvoiceNumberTaken means the generated invoice number collided; callers draw a new one
	ErrInvoiceNumberTaken = shared.NewDomainError("INVOICE_NUMBER_TAKEN", "Invoice number already in use")
	// ErrPeriodAlreadyBilled means a monthly invoice already exists for the client's calendar month
	ErrPeriodAlreadyBilled = shared.NewDomainError(shared.CodeAlreadyExists, "Monthly invoice already exists for this billing month")
	// ErrDuplicateTransID means a payment with the same transaction reference exists
	ErrDuplicateTransID = shared.NewDomainError("DUPLICATE_TRANS_ID", "Payment with this transaction ID already exists")
)
