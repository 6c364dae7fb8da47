//go:build integration

package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	appbilling "github.com/wasteline/backend/internal/application/billing"
	"github.com/wasteline/backend/internal/domain/billing"
	"github.com/wasteline/backend/internal/infrastructure/migration"
	"github.com/wasteline/backend/migrations"
)

// newPostgresLedger starts a throwaway PostgreSQL and applies the embedded schema
func newPostgresLedger(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("wasteline_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start PostgreSQL container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(10)

	m, err := migration.NewFromFS(sqlDB, migrations.FS, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())
	return db
}

func TestPostgresLedger_UniqueIndexes(t *testing.T) {
	db := newPostgresLedger(t)
	repo := NewGormInvoiceRepository(db)
	ctx := context.Background()
	seed := newLedgerSeed()

	first := seed.monthlyInvoice(t, "50.00", day0)
	require.NoError(t, repo.Create(ctx, first))

	again := seed.monthlyInvoice(t, "50.00", day0.AddDate(0, 0, 3))
	assert.ErrorIs(t, repo.Create(ctx, again), billing.ErrPeriodAlreadyBilled)

	otherOrg := &ledgerSeed{orgID: uuid.New(), clientID: seed.clientID, refs: seed.refs}
	require.NoError(t, repo.Create(ctx, otherOrg.monthlyInvoice(t, "50.00", day0)))

	dup := seed.customInvoice(t, "5.00", day0)
	dup.InvoiceNumber = first.InvoiceNumber
	assert.ErrorIs(t, repo.Create(ctx, dup), billing.ErrInvoiceNumberTaken)

	require.NoError(t, repo.Create(ctx, seed.customInvoice(t, "5.00", day0)))
	require.NoError(t, repo.Create(ctx, seed.customInvoice(t, "6.00", day0)))
}

// Concurrent payments for one client must never over-apply an invoice: the
// client lock serializes them and the loser allocates against fresh state.
func TestPostgresLedger_ConcurrentAllocationSerializes(t *testing.T) {
	db := newPostgresLedger(t)
	ctx := context.Background()
	seed := newLedgerSeed()

	invoices := NewGormInvoiceRepository(db)
	payments := NewGormPaymentRepository(db)
	inv := seed.customInvoice(t, "100.00", day0)
	require.NoError(t, invoices.Create(ctx, inv))

	allocation := appbilling.NewAllocationService(appbilling.AllocationServiceConfig{
		TxScope:      NewGormTransactionScope(db),
		MaxRetries:   5,
		RetryBackoff: 10 * time.Millisecond,
	})

	const workers = 4
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		p := seed.payment(t, "40.00", day0.Add(time.Duration(i)*time.Minute))
		require.NoError(t, payments.Create(ctx, p))
		wg.Add(1)
		go func(p *billing.Payment) {
			defer wg.Done()
			_, err := allocation.AllocateNewPayment(ctx, p)
			errs <- err
		}(p)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := invoices.FindByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(stored.PaidAmount), stored.PaidAmount.String())
	assert.Equal(t, billing.InvoiceStatusFullyPaid, stored.PaymentStatus)

	credit, err := payments.SumCreditByClient(ctx, seed.orgID, seed.clientID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(60).Equal(credit), credit.String())
}

func TestPostgresLedger_ClientLockBlocksSecondTransaction(t *testing.T) {
	db := newPostgresLedger(t)
	scope := NewGormTransactionScope(db)
	ctx := context.Background()
	orgID, clientID := uuid.New(), uuid.New()

	locked := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = scope.Execute(ctx, func(repos appbilling.TransactionalRepositories) error {
			if err := repos.ClientLocker().LockClient(ctx, orgID, clientID); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	acquired := make(chan time.Time, 1)
	go func() {
		_ = scope.Execute(ctx, func(repos appbilling.TransactionalRepositories) error {
			err := repos.ClientLocker().LockClient(ctx, orgID, clientID)
			acquired <- time.Now()
			return err
		})
	}()

	releasedAt := time.Now().Add(200 * time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	close(release)

	select {
	case at := <-acquired:
		assert.False(t, at.Before(releasedAt), "second lock acquired while the first transaction was open")
	case <-time.After(5 * time.Second):
		t.Fatal("second transaction never acquired the client lock")
	}
}
