package billing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAgingReport(t *testing.T) {
	f := newLedgerFixture()
	now := time.Date(2026, 9, 30, 12, 0, 0, 0, time.UTC)
	grace := DefaultAgingGraceDays

	overdueBy := func(days int, amount string) *Invoice {
		inv := f.invoice(t, amount, now.AddDate(0, 0, -(days + grace + 30)))
		inv.DueDate = now.AddDate(0, 0, -(days + grace))
		return inv
	}

	inv45 := overdueBy(45, "100")
	require.NoError(t, inv45.ApplyPayment(uuid.New(), dec("25"), now))
	invoices := []*Invoice{
		overdueBy(1, "50"),
		overdueBy(30, "50"),
		inv45,
		overdueBy(90, "25"),
		overdueBy(400, "100"),
	}

	paid := overdueBy(45, "80")
	require.NoError(t, paid.ApplyPayment(uuid.New(), dec("80"), now))
	invoices = append(invoices, paid)

	notYetDue := f.invoice(t, "500", now)
	invoices = append(invoices, notYetDue)

	report := BuildAgingReport(invoices, now, grace)

	require.Len(t, report.Buckets, 4)
	assert.Equal(t, "1-30", report.Buckets[0].Label)
	assert.Equal(t, "91+", report.Buckets[3].Label)

	assert.Equal(t, 2, report.Buckets[0].Count)
	assertDecimal(t, "100", report.Buckets[0].Outstanding)

	// 45 days overdue after grace lands in 31-60 with its outstanding balance
	assert.Equal(t, 1, report.Buckets[1].Count)
	assertDecimal(t, "75", report.Buckets[1].Outstanding)

	assert.Equal(t, 1, report.Buckets[2].Count)
	assertDecimal(t, "25", report.Buckets[2].Outstanding)

	assert.Equal(t, 1, report.Buckets[3].Count)
	assertDecimal(t, "100", report.Buckets[3].Outstanding)

	assert.Equal(t, 5, report.TotalCount)
	assertDecimal(t, "300", report.TotalOutstanding)
	assertDecimal(t, "33.33", report.Buckets[0].Percentage)
	assertDecimal(t, "25", report.Buckets[1].Percentage)
	assertDecimal(t, "8.33", report.Buckets[2].Percentage)
	assertDecimal(t, "33.33", report.Buckets[3].Percentage)
}

func TestBuildAgingReport_Empty(t *testing.T) {
	report := BuildAgingReport(nil, testDay0, DefaultAgingGraceDays)

	assert.Zero(t, report.TotalCount)
	assert.True(t, report.TotalOutstanding.IsZero())
	for _, b := range report.Buckets {
		assert.True(t, b.Percentage.IsZero())
	}
}

func TestBuildAgingReport_UsesItsOwnGrace(t *testing.T) {
	f := newLedgerFixture()
	now := time.Date(2026, 9, 30, 12, 0, 0, 0, time.UTC)
	inv := f.invoice(t, "10", now.AddDate(0, 0, -40))
	inv.DueDate = now.AddDate(0, 0, -10)

	assert.Equal(t, 1, BuildAgingReport([]*Invoice{inv}, now, 5).TotalCount)
	assert.Zero(t, BuildAgingReport([]*Invoice{inv}, now, 10).TotalCount)
}

func TestDetectOverdue_OrdersOldestFirst(t *testing.T) {
	f := newLedgerFixture()
	now := time.Date(2026, 9, 30, 12, 0, 0, 0, time.UTC)
	young := f.invoice(t, "10", now.AddDate(0, 0, -40))
	young.DueDate = now.AddDate(0, 0, -10)
	old := f.invoice(t, "10", now.AddDate(0, 0, -90))
	old.DueDate = now.AddDate(0, 0, -60)

	items := DetectOverdue([]*Invoice{young, old}, now, 0)

	require.Len(t, items, 2)
	assert.Equal(t, old.ID, items[0].InvoiceID)
	assert.Equal(t, 60, items[0].DaysOverdue)
}

func TestAgingBucket_Contains(t *testing.T) {
	buckets := NewAgingBuckets()
	assert.False(t, buckets[0].Contains(0))
	assert.True(t, buckets[0].Contains(30))
	assert.True(t, buckets[1].Contains(31))
	assert.True(t, buckets[1].Contains(45))
	assert.True(t, buckets[3].Contains(10000))
}
