package billing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testDay0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type ledgerFixture struct {
	orgID    uuid.UUID
	clientID uuid.UUID
	refs     *RandomReferenceGenerator
}

func newLedgerFixture() *ledgerFixture {
	return &ledgerFixture{
		orgID:    uuid.New(),
		clientID: uuid.New(),
		refs:     NewRandomReferenceGenerator(),
	}
}

func (f *ledgerFixture) invoice(t *testing.T, amount string, createdAt time.Time) *Invoice {
	t.Helper()
	inv, err := NewCustomInvoice(f.orgID, f.clientID, f.refs.InvoiceNumber(), "Service", "",
		decimal.RequireFromString(amount), createdAt.AddDate(0, 0, 30), createdAt)
	require.NoError(t, err)
	inv.ClearDomainEvents()
	return inv
}

func (f *ledgerFixture) payment(t *testing.T, amount string, createdAt time.Time) *Payment {
	t.Helper()
	p, err := NewPayment(f.orgID, f.clientID, f.refs.TransactionID(PaymentMethodCash, createdAt),
		PaymentMethodCash, decimal.RequireFromString(amount), createdAt, createdAt)
	require.NoError(t, err)
	return p
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(expected).Equal(actual), "expected %s, got %s", expected, actual.StringFixed(2))
}
