package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wasteline/backend/internal/domain/billing"
	"github.com/wasteline/backend/internal/domain/shared"
)

func testOverdueEvent(t *testing.T) shared.DomainEvent {
	f := newBillingFixture(t)
	inv := f.seedInvoice(t, "10", testNow.AddDate(0, 0, -60))
	return billing.NewInvoiceOverdueEvent(inv, 5, testNow)
}

func TestNotificationHandler_Delivers(t *testing.T) {
	notifier := new(MockNotifier)
	event := testOverdueEvent(t)
	notifier.On("Notify", mock.Anything, event).Return(nil)
	h := NewNotificationHandler(notifier, time.Second, nil, nil)

	require.NoError(t, h.Handle(context.Background(), event))
	notifier.AssertExpectations(t)
	assert.Contains(t, h.EventTypes(), billing.EventTypeInvoiceOverdue)
}

func TestNotificationHandler_FailureIsReportedAndLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	notifier := new(MockNotifier)
	notifier.On("Notify", mock.Anything, mock.Anything).Return(errors.New("smtp down"))
	h := NewNotificationHandler(notifier, time.Second, nil, zap.New(core))

	err := h.Handle(context.Background(), testOverdueEvent(t))

	assert.ErrorIs(t, err, shared.ErrNotificationFailed)
	assert.Equal(t, 1, logs.FilterMessage("Notification delivery failed").Len())
}

func TestNotificationHandler_AppliesTimeout(t *testing.T) {
	notifier := new(MockNotifier)
	notifier.On("Notify", mock.Anything, mock.Anything).Return(context.DeadlineExceeded).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		})
	h := NewNotificationHandler(notifier, 20*time.Millisecond, nil, nil)

	start := time.Now()
	err := h.Handle(context.Background(), testOverdueEvent(t))

	assert.ErrorIs(t, err, shared.ErrNotificationFailed)
	assert.Less(t, time.Since(start), 2*time.Second)
}
