package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	appbilling "github.com/wasteline/backend/internal/application/billing"
	"github.com/wasteline/backend/internal/domain/billing"
	"github.com/wasteline/backend/internal/domain/shared"
	"github.com/wasteline/backend/internal/infrastructure/persistence/models"
)

var day0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// newLedgerDB opens an in-memory sqlite ledger. The pool is pinned to one
// connection so every query sees the same database.
func newLedgerDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

type ledgerSeed struct {
	orgID    uuid.UUID
	clientID uuid.UUID
	refs     *billing.RandomReferenceGenerator
}

func newLedgerSeed() *ledgerSeed {
	return &ledgerSeed{orgID: uuid.New(), clientID: uuid.New(), refs: billing.NewRandomReferenceGenerator()}
}

func (s *ledgerSeed) customInvoice(t *testing.T, amount string, at time.Time) *billing.Invoice {
	t.Helper()
	inv, err := billing.NewCustomInvoice(s.orgID, s.clientID, s.refs.InvoiceNumber(), "Bulk pickup", "",
		decimal.RequireFromString(amount), at.AddDate(0, 0, 30), at)
	require.NoError(t, err)
	return inv
}

func (s *ledgerSeed) monthlyInvoice(t *testing.T, amount string, at time.Time) *billing.Invoice {
	t.Helper()
	inv, err := billing.NewMonthlyInvoice(s.orgID, s.clientID, s.refs.InvoiceNumber(),
		decimal.RequireFromString(amount), at.AddDate(0, 0, 30), at, at)
	require.NoError(t, err)
	return inv
}

func (s *ledgerSeed) payment(t *testing.T, amount string, at time.Time) *billing.Payment {
	t.Helper()
	p, err := billing.NewPayment(s.orgID, s.clientID, s.refs.TransactionID(billing.PaymentMethodCash, at),
		billing.PaymentMethodCash, decimal.RequireFromString(amount), at, at)
	require.NoError(t, err)
	return p
}

func TestGormContractRepository_SaveUpserts(t *testing.T) {
	db := newLedgerDB(t)
	repo := NewGormContractRepository(db)
	ctx := context.Background()
	seed := newLedgerSeed()

	start := day0
	c, err := billing.NewContract(seed.orgID, seed.clientID, decimal.NewFromInt(50), &start, 5, "monday", day0)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, c))

	c.MonthlyRate = decimal.NewFromInt(75)
	c.GracePeriodDays = 10
	require.NoError(t, repo.Save(ctx, c))

	found, err := repo.FindByClient(ctx, seed.orgID, seed.clientID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(75).Equal(found.MonthlyRate))
	assert.Equal(t, 10, found.GracePeriodDays)

	_, err = repo.FindByClient(ctx, seed.orgID, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormContractRepository_FindBillable(t *testing.T) {
	db := newLedgerDB(t)
	repo := NewGormContractRepository(db)
	ctx := context.Background()

	start := day0
	billable, err := billing.NewContract(uuid.New(), uuid.New(), decimal.NewFromInt(40), &start, 5, "", day0)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, billable))

	notStarted, err := billing.NewContract(uuid.New(), uuid.New(), decimal.NewFromInt(40), nil, 5, "", day0)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, notStarted))

	contracts, err := repo.FindBillable(ctx)
	require.NoError(t, err)
	require.Len(t, contracts, 1)
	assert.Equal(t, billable.ClientID, contracts[0].ClientID)
}

func TestGormInvoiceRepository_CreateUniqueness(t *testing.T) {
	db := newLedgerDB(t)
	repo := NewGormInvoiceRepository(db)
	ctx := context.Background()
	seed := newLedgerSeed()

	first := seed.monthlyInvoice(t, "50.00", day0)
	require.NoError(t, repo.Create(ctx, first))

	t.Run("same number is reported as taken", func(t *testing.T) {
		dup := seed.customInvoice(t, "10.00", day0)
		dup.InvoiceNumber = first.InvoiceNumber
		assert.ErrorIs(t, repo.Create(ctx, dup), billing.ErrInvoiceNumberTaken)
	})

	t.Run("second monthly invoice in the same month is rejected", func(t *testing.T) {
		again := seed.monthlyInvoice(t, "50.00", day0.AddDate(0, 0, 10))
		err := repo.Create(ctx, again)
		assert.ErrorIs(t, err, billing.ErrPeriodAlreadyBilled)
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("custom invoices do not occupy the month", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, seed.customInvoice(t, "10.00", day0)))
		require.NoError(t, repo.Create(ctx, seed.customInvoice(t, "12.00", day0)))
	})

	t.Run("same client under another organization has its own month", func(t *testing.T) {
		other := &ledgerSeed{orgID: uuid.New(), clientID: seed.clientID, refs: seed.refs}
		inv := other.monthlyInvoice(t, "70.00", day0)
		require.NoError(t, repo.Create(ctx, inv))

		found, err := repo.FindMonthlyForPeriod(ctx, other.orgID, seed.clientID, "2026-03")
		require.NoError(t, err)
		assert.Equal(t, inv.ID, found.ID)
	})

	t.Run("next month is free", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, seed.monthlyInvoice(t, "50.00", day0.AddDate(0, 1, 0))))
	})

	found, err := repo.FindMonthlyForPeriod(ctx, seed.orgID, seed.clientID, "2026-03")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	taken, err := repo.ExistsByNumber(ctx, first.InvoiceNumber)
	require.NoError(t, err)
	assert.True(t, taken)
}

func TestGormInvoiceRepository_FindOpenByClientOrdersByCreation(t *testing.T) {
	db := newLedgerDB(t)
	repo := NewGormInvoiceRepository(db)
	ctx := context.Background()
	seed := newLedgerSeed()

	newest := seed.customInvoice(t, "30.00", day0.AddDate(0, 0, 2))
	oldest := seed.customInvoice(t, "10.00", day0)
	middle := seed.customInvoice(t, "20.00", day0.AddDate(0, 0, 1))
	for _, inv := range []*billing.Invoice{newest, oldest, middle} {
		require.NoError(t, repo.Create(ctx, inv))
	}

	open, err := repo.FindOpenByClient(ctx, seed.orgID, seed.clientID)
	require.NoError(t, err)
	require.Len(t, open, 3)
	assert.Equal(t, []uuid.UUID{oldest.ID, middle.ID, newest.ID},
		[]uuid.UUID{open[0].ID, open[1].ID, open[2].ID})

	outstanding, err := repo.SumOutstandingByClient(ctx, seed.orgID, seed.clientID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("60.00").Equal(outstanding), outstanding.String())

	none, err := repo.SumOutstandingByClient(ctx, seed.orgID, uuid.New())
	require.NoError(t, err)
	assert.True(t, none.IsZero())
}

func TestGormInvoiceRepository_SaveWithLock(t *testing.T) {
	db := newLedgerDB(t)
	repo := NewGormInvoiceRepository(db)
	ctx := context.Background()
	seed := newLedgerSeed()

	inv := seed.customInvoice(t, "100.00", day0)
	require.NoError(t, repo.Create(ctx, inv))

	paymentID := uuid.New()
	require.NoError(t, inv.ApplyPayment(paymentID, decimal.NewFromInt(40), day0.Add(time.Hour)))
	inv.IncrementVersion()
	require.NoError(t, repo.SaveWithLock(ctx, inv))

	stored, err := repo.FindByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceStatusPartiallyPaid, stored.PaymentStatus)
	assert.True(t, decimal.NewFromInt(40).Equal(stored.PaidAmount))
	assert.Equal(t, billing.IDList{paymentID}, stored.PaymentIDs)
	assert.Equal(t, 2, stored.Version)

	// a writer holding the old version loses
	stale := *stored
	stale.Version = 2
	assert.ErrorIs(t, repo.SaveWithLock(ctx, &stale), shared.ErrConcurrencyConflict)
}

func TestGormPaymentRepository(t *testing.T) {
	db := newLedgerDB(t)
	repo := NewGormPaymentRepository(db)
	ctx := context.Background()
	seed := newLedgerSeed()

	later := seed.payment(t, "25.00", day0.Add(2*time.Hour))
	earlier := seed.payment(t, "15.50", day0)
	require.NoError(t, repo.Create(ctx, later))
	require.NoError(t, repo.Create(ctx, earlier))

	t.Run("duplicate trans id", func(t *testing.T) {
		dup := seed.payment(t, "1.00", day0)
		dup.TransID = earlier.TransID
		assert.ErrorIs(t, repo.Create(ctx, dup), billing.ErrDuplicateTransID)
	})

	t.Run("credit listed oldest first", func(t *testing.T) {
		credit, err := repo.FindWithCreditByClient(ctx, seed.orgID, seed.clientID)
		require.NoError(t, err)
		require.Len(t, credit, 2)
		assert.Equal(t, earlier.ID, credit[0].ID)
		assert.Equal(t, later.ID, credit[1].ID)
	})

	t.Run("credit sum", func(t *testing.T) {
		sum, err := repo.SumCreditByClient(ctx, seed.orgID, seed.clientID)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("40.50").Equal(sum), sum.String())
	})

	t.Run("lookup by trans id", func(t *testing.T) {
		found, err := repo.FindByTransID(ctx, later.TransID)
		require.NoError(t, err)
		assert.Equal(t, later.ID, found.ID)

		_, err = repo.FindByTransID(ctx, "CASH_missing")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("paged listing", func(t *testing.T) {
		rows, total, err := repo.FindAll(ctx, billing.PaymentFilter{
			Filter:   shared.Filter{Page: 1, PageSize: 1, OrderBy: "created_at", OrderDir: "asc"},
			ClientID: &seed.clientID,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		require.Len(t, rows, 1)
		assert.Equal(t, earlier.ID, rows[0].ID)
	})
}

func TestGormTransactionScope_RollsBackOnError(t *testing.T) {
	db := newLedgerDB(t)
	scope := NewGormTransactionScope(db)
	ctx := context.Background()
	seed := newLedgerSeed()

	inv := seed.customInvoice(t, "10.00", day0)
	err := scope.Execute(ctx, func(repos appbilling.TransactionalRepositories) error {
		require.NoError(t, repos.ClientLocker().LockClient(ctx, seed.orgID, seed.clientID))
		require.NoError(t, repos.InvoiceRepo().Create(ctx, inv))
		return shared.ErrConcurrencyConflict
	})
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)

	_, err = NewGormInvoiceRepository(db).FindByID(ctx, inv.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormClientLocker_IsReentrantAcrossTransactions(t *testing.T) {
	db := newLedgerDB(t)
	scope := NewGormTransactionScope(db)
	ctx := context.Background()
	seed := newLedgerSeed()

	for i := 0; i < 2; i++ {
		err := scope.Execute(ctx, func(repos appbilling.TransactionalRepositories) error {
			return repos.ClientLocker().LockClient(ctx, seed.orgID, seed.clientID)
		})
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, db.Model(&models.ClientLockModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
