package billing

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wasteline/backend/internal/domain/billing"
	"github.com/wasteline/backend/internal/domain/shared"
)

var testNow = time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

// memLedger is an in-memory implementation of the ledger repositories.
// Reads return copies so that a failed pass never leaks into stored state.
type memLedger struct {
	mu        sync.Mutex
	invoices  map[uuid.UUID]*billing.Invoice
	payments  map[uuid.UUID]*billing.Payment
	contracts map[string]*billing.Contract

	// conflicts makes the next N SaveWithLock calls fail with a version conflict
	conflicts int
	saveCalls int
	lockCalls int
	panicFor  uuid.UUID
}

func newMemLedger() *memLedger {
	return &memLedger{
		invoices:  make(map[uuid.UUID]*billing.Invoice),
		payments:  make(map[uuid.UUID]*billing.Payment),
		contracts: make(map[string]*billing.Contract),
	}
}

func (l *memLedger) invoiceRepo() *memInvoiceRepo { return &memInvoiceRepo{l} }
func (l *memLedger) paymentRepo() *memPaymentRepo { return &memPaymentRepo{l} }
func (l *memLedger) contractRepo() *memContractRepo { return &memContractRepo{l} }

func (l *memLedger) scope() *NoOpTransactionScope {
	return NewNoOpTransactionScope(l.invoiceRepo(), l.paymentRepo(), l)
}

func (l *memLedger) LockClient(_ context.Context, _, _ uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lockCalls++
	return nil
}

func (l *memLedger) invoice(t *testing.T, id uuid.UUID) *billing.Invoice {
	t.Helper()
	inv, err := l.invoiceRepo().FindByID(context.Background(), id)
	require.NoError(t, err)
	return inv
}

func (l *memLedger) payment(t *testing.T, id uuid.UUID) *billing.Payment {
	t.Helper()
	p, err := l.paymentRepo().FindByID(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (l *memLedger) takeConflict() bool {
	l.saveCalls++
	if l.conflicts > 0 {
		l.conflicts--
		return true
	}
	return false
}

func cloneInvoice(inv *billing.Invoice) *billing.Invoice {
	c := *inv
	c.PaymentIDs = append(billing.IDList{}, inv.PaymentIDs...)
	c.ClearDomainEvents()
	return &c
}

func clonePayment(p *billing.Payment) *billing.Payment {
	c := *p
	c.InvoicesProcessed = append(billing.IDList{}, p.InvoicesProcessed...)
	c.ClearDomainEvents()
	return &c
}

type memInvoiceRepo struct{ l *memLedger }

func (r *memInvoiceRepo) FindByID(_ context.Context, id uuid.UUID) (*billing.Invoice, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	inv, ok := r.l.invoices[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return cloneInvoice(inv), nil
}

func (r *memInvoiceRepo) FindMonthlyForPeriod(_ context.Context, orgID, clientID uuid.UUID, month string) (*billing.Invoice, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if clientID == r.l.panicFor {
		panic("corrupt ledger row")
	}
	for _, inv := range r.l.invoices {
		if inv.Type == billing.InvoiceTypeMonthly && inv.OrganizationID == orgID &&
			inv.ClientID == clientID && inv.BillingMonth == month {
			return cloneInvoice(inv), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memInvoiceRepo) FindOpenByClient(_ context.Context, orgID, clientID uuid.UUID) ([]*billing.Invoice, error) {
	return r.selectOpen(func(inv *billing.Invoice) bool {
		return inv.OrganizationID == orgID && inv.ClientID == clientID
	}), nil
}

func (r *memInvoiceRepo) FindOpen(_ context.Context, orgID *uuid.UUID) ([]*billing.Invoice, error) {
	return r.selectOpen(func(inv *billing.Invoice) bool {
		return orgID == nil || inv.OrganizationID == *orgID
	}), nil
}

func (r *memInvoiceRepo) selectOpen(match func(*billing.Invoice) bool) []*billing.Invoice {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	out := make([]*billing.Invoice, 0)
	for _, inv := range r.l.invoices {
		if match(inv) && inv.PaymentStatus.CanReceivePayment() {
			out = append(out, cloneInvoice(inv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *memInvoiceRepo) FindAll(_ context.Context, f billing.InvoiceFilter) ([]*billing.Invoice, int64, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	out := make([]*billing.Invoice, 0)
	for _, inv := range r.l.invoices {
		if f.OrganizationID != nil && inv.OrganizationID != *f.OrganizationID {
			continue
		}
		if f.ClientID != nil && inv.ClientID != *f.ClientID {
			continue
		}
		if f.Status != nil && inv.PaymentStatus != *f.Status {
			continue
		}
		out = append(out, cloneInvoice(inv))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, f.Filter), int64(len(out)), nil
}

func (r *memInvoiceRepo) ExistsByNumber(_ context.Context, number string) (bool, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, inv := range r.l.invoices {
		if inv.InvoiceNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (r *memInvoiceRepo) SumOutstandingByClient(_ context.Context, orgID, clientID uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, inv := range r.selectOpen(func(inv *billing.Invoice) bool {
		return inv.OrganizationID == orgID && inv.ClientID == clientID
	}) {
		total = total.Add(inv.Outstanding())
	}
	return total, nil
}

func (r *memInvoiceRepo) Create(_ context.Context, inv *billing.Invoice) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, existing := range r.l.invoices {
		if existing.InvoiceNumber == inv.InvoiceNumber {
			return billing.ErrInvoiceNumberTaken
		}
		if inv.Type == billing.InvoiceTypeMonthly && existing.Type == billing.InvoiceTypeMonthly &&
			existing.OrganizationID == inv.OrganizationID && existing.ClientID == inv.ClientID &&
			existing.BillingMonth == inv.BillingMonth {
			return billing.ErrPeriodAlreadyBilled
		}
	}
	r.l.invoices[inv.ID] = cloneInvoice(inv)
	return nil
}

func (r *memInvoiceRepo) SaveWithLock(_ context.Context, inv *billing.Invoice) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	stored, ok := r.l.invoices[inv.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if r.l.takeConflict() || stored.Version != inv.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	r.l.invoices[inv.ID] = cloneInvoice(inv)
	return nil
}

type memPaymentRepo struct{ l *memLedger }

func (r *memPaymentRepo) FindByID(_ context.Context, id uuid.UUID) (*billing.Payment, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	p, ok := r.l.payments[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return clonePayment(p), nil
}

func (r *memPaymentRepo) FindByTransID(_ context.Context, transID string) (*billing.Payment, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, p := range r.l.payments {
		if p.TransID == transID {
			return clonePayment(p), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memPaymentRepo) FindWithCreditByClient(_ context.Context, orgID, clientID uuid.UUID) ([]*billing.Payment, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	out := make([]*billing.Payment, 0)
	for _, p := range r.l.payments {
		if p.OrganizationID == orgID && p.ClientID == clientID && p.Status.HasCredit() && p.RemainingAmount.IsPositive() {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memPaymentRepo) FindAll(_ context.Context, f billing.PaymentFilter) ([]*billing.Payment, int64, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	out := make([]*billing.Payment, 0)
	for _, p := range r.l.payments {
		if f.OrganizationID != nil && p.OrganizationID != *f.OrganizationID {
			continue
		}
		if f.ClientID != nil && p.ClientID != *f.ClientID {
			continue
		}
		if f.Status != nil && p.Status != *f.Status {
			continue
		}
		out = append(out, clonePayment(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, f.Filter), int64(len(out)), nil
}

func (r *memPaymentRepo) SumCreditByClient(ctx context.Context, orgID, clientID uuid.UUID) (decimal.Decimal, error) {
	payments, _ := r.FindWithCreditByClient(ctx, orgID, clientID)
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.RemainingAmount)
	}
	return total, nil
}

func (r *memPaymentRepo) Create(_ context.Context, p *billing.Payment) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, existing := range r.l.payments {
		if existing.TransID == p.TransID {
			return billing.ErrDuplicateTransID
		}
	}
	r.l.payments[p.ID] = clonePayment(p)
	return nil
}

func (r *memPaymentRepo) SaveWithLock(_ context.Context, p *billing.Payment) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	stored, ok := r.l.payments[p.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if r.l.takeConflict() || stored.Version != p.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	r.l.payments[p.ID] = clonePayment(p)
	return nil
}

type memContractRepo struct{ l *memLedger }

func contractKey(orgID, clientID uuid.UUID) string {
	return orgID.String() + "/" + clientID.String()
}

func (r *memContractRepo) FindByClient(_ context.Context, orgID, clientID uuid.UUID) (*billing.Contract, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	c, ok := r.l.contracts[contractKey(orgID, clientID)]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memContractRepo) FindBillable(_ context.Context) ([]*billing.Contract, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	out := make([]*billing.Contract, 0)
	for _, c := range r.l.contracts {
		if c.IsBillable() {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID.String() < out[j].ClientID.String() })
	return out, nil
}

func (r *memContractRepo) Save(_ context.Context, c *billing.Contract) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	cp := *c
	r.l.contracts[contractKey(c.OrganizationID, c.ClientID)] = &cp
	return nil
}

func paginate[T any](items []T, f shared.Filter) []T {
	start := f.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := len(items)
	if f.PageSize > 0 && start+f.PageSize < end {
		end = start + f.PageSize
	}
	return items[start:end]
}

// recordingPublisher captures published events
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
	// failType rejects any batch carrying an event of this type
	failType string
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range events {
		if p.failType != "" && e.EventType() == p.failType {
			return errors.New("publisher unavailable")
		}
	}
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) failOn(eventType string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failType = eventType
}

// notificationMetrics counts failed notification deliveries
type notificationMetrics struct {
	noopMetrics
	mu       sync.Mutex
	failures map[string]int
}

func (m *notificationMetrics) RecordNotification(_ context.Context, eventType string, err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures == nil {
		m.failures = make(map[string]int)
	}
	m.failures[eventType]++
}

func (p *recordingPublisher) ofType(eventType string) []shared.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.DomainEvent, 0)
	for _, e := range p.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// sequenceRefs hands out the given invoice numbers before falling back to random ones
type sequenceRefs struct {
	numbers []string
	random  *billing.RandomReferenceGenerator
}

func (s *sequenceRefs) InvoiceNumber() string {
	if len(s.numbers) > 0 {
		n := s.numbers[0]
		s.numbers = s.numbers[1:]
		return n
	}
	return s.random.InvoiceNumber()
}

func (s *sequenceRefs) TransactionID(method billing.PaymentMethod, at time.Time) string {
	return s.random.TransactionID(method, at)
}

// MockNotifier is a testify mock of billing.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, event shared.DomainEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockRunLocker is a testify mock of shared.RunLocker
type MockRunLocker struct {
	mock.Mock
}

func (m *MockRunLocker) TryLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, name, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockRunLocker) Unlock(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

// memNoticeStore is an in-memory IdempotencyStore without expiry
type memNoticeStore struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMemNoticeStore() *memNoticeStore {
	return &memNoticeStore{keys: make(map[string]bool)}
}

func (s *memNoticeStore) MarkProcessed(_ context.Context, key string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys[key] {
		return false, nil
	}
	s.keys[key] = true
	return true, nil
}

func (s *memNoticeStore) IsProcessed(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys[key], nil
}

func (s *memNoticeStore) Close() error { return nil }

// billingFixture wires the services against one memLedger
type billingFixture struct {
	ledger     *memLedger
	clock      *shared.ManualClock
	publisher  *recordingPublisher
	allocation *AllocationService
	invoices   *InvoiceService
	payments   *PaymentService
	orgID      uuid.UUID
	clientID   uuid.UUID
}

func newBillingFixture(t *testing.T) *billingFixture {
	t.Helper()
	f := &billingFixture{
		ledger:    newMemLedger(),
		clock:     shared.NewManualClock(testNow),
		publisher: &recordingPublisher{},
		orgID:     uuid.New(),
		clientID:  uuid.New(),
	}
	f.allocation = NewAllocationService(AllocationServiceConfig{
		TxScope:        f.ledger.scope(),
		EventPublisher: f.publisher,
		Clock:          f.clock,
		MaxRetries:     2,
		RetryBackoff:   time.Millisecond,
	})
	f.invoices = NewInvoiceService(InvoiceServiceConfig{
		InvoiceRepo:    f.ledger.invoiceRepo(),
		Allocation:     f.allocation,
		EventPublisher: f.publisher,
		Clock:          f.clock,
	})
	f.payments = NewPaymentService(PaymentServiceConfig{
		PaymentRepo:    f.ledger.paymentRepo(),
		Allocation:     f.allocation,
		EventPublisher: f.publisher,
		Clock:          f.clock,
	})
	return f
}

// seedInvoice stores an open custom invoice created at the given time
func (f *billingFixture) seedInvoice(t *testing.T, amount string, createdAt time.Time) *billing.Invoice {
	t.Helper()
	inv, err := billing.NewCustomInvoice(f.orgID, f.clientID, billing.NewRandomReferenceGenerator().InvoiceNumber(),
		"Service", "", decimal.RequireFromString(amount), createdAt.AddDate(0, 0, 30), createdAt)
	require.NoError(t, err)
	require.NoError(t, f.ledger.invoiceRepo().Create(context.Background(), inv))
	return inv
}

// seedPayment stores an unallocated payment created at the given time
func (f *billingFixture) seedPayment(t *testing.T, amount string, createdAt time.Time) *billing.Payment {
	t.Helper()
	p, err := billing.NewPayment(f.orgID, f.clientID,
		billing.NewRandomReferenceGenerator().TransactionID(billing.PaymentMethodCash, createdAt),
		billing.PaymentMethodCash, decimal.RequireFromString(amount), createdAt, createdAt)
	require.NoError(t, err)
	require.NoError(t, f.ledger.paymentRepo().Create(context.Background(), p))
	return p
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(expected).Equal(actual), "expected %s, got %s", expected, actual.StringFixed(2))
}
