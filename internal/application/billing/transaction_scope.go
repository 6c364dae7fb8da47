package billing

import (
	"context"

	"github.com/wasteline/backend/internal/domain/billing"
)

// TransactionScope provides transactional access to the ledger repositories.
// Every repository operation inside Execute shares one database transaction that
// is committed when fn returns nil and rolled back otherwise.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories exposes the repositories bound to the current transaction.
//
// ClientLocker must be called before any ledger row is read: it takes the
// per-client lock that serializes allocation for that client.
type TransactionalRepositories interface {
	InvoiceRepo() billing.InvoiceRepository
	PaymentRepo() billing.PaymentRepository
	ClientLocker() billing.ClientLedgerLocker
}

// NoOpTransactionScope runs fn directly against the given repositories.
// It is used in tests where atomicity is provided by the fakes.
type NoOpTransactionScope struct {
	invoiceRepo billing.InvoiceRepository
	paymentRepo billing.PaymentRepository
	locker      billing.ClientLedgerLocker
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(
	invoiceRepo billing.InvoiceRepository,
	paymentRepo billing.PaymentRepository,
	locker billing.ClientLedgerLocker,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		invoiceRepo: invoiceRepo,
		paymentRepo: paymentRepo,
		locker:      locker,
	}
}

// Execute runs the function without a real transaction.
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// InvoiceRepo returns the invoice repository.
func (s *NoOpTransactionScope) InvoiceRepo() billing.InvoiceRepository {
	return s.invoiceRepo
}

// PaymentRepo returns the payment repository.
func (s *NoOpTransactionScope) PaymentRepo() billing.PaymentRepository {
	return s.paymentRepo
}

// ClientLocker returns the client ledger locker.
func (s *NoOpTransactionScope) ClientLocker() billing.ClientLedgerLocker {
	return s.locker
}

var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
