package billing

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultAgingGraceDays is the system-wide grace used for aging.
// It is independent of each contract's own grace period.
const DefaultAgingGraceDays = 5

// AgingBucket is one day-range of overdue invoices
type AgingBucket struct {
	Label       string
	MinDays     int
	MaxDays     int // 0 means unbounded
	Count       int
	Outstanding decimal.Decimal
	Percentage  decimal.Decimal
}

// Contains reports whether daysOverdue falls in the bucket
func (b AgingBucket) Contains(daysOverdue int) bool {
	if daysOverdue < b.MinDays {
		return false
	}
	return b.MaxDays == 0 || daysOverdue <= b.MaxDays
}

// OverdueInvoice pairs an overdue invoice with its age
type OverdueInvoice struct {
	InvoiceID     uuid.UUID
	InvoiceNumber string
	ClientID      uuid.UUID
	DueDate       time.Time
	DaysOverdue   int
	Outstanding   decimal.Decimal
}

// AgingReport groups overdue invoices by how long they have been overdue
type AgingReport struct {
	AsOf             time.Time
	GraceDays        int
	Buckets          []AgingBucket
	TotalCount       int
	TotalOutstanding decimal.Decimal
}

// NewAgingBuckets returns the empty standard buckets: 1-30, 31-60, 61-90, 91+
func NewAgingBuckets() []AgingBucket {
	ranges := [][2]int{{1, 30}, {31, 60}, {61, 90}, {91, 0}}
	buckets := make([]AgingBucket, len(ranges))
	for i, r := range ranges {
		label := fmt.Sprintf("%d-%d", r[0], r[1])
		if r[1] == 0 {
			label = fmt.Sprintf("%d+", r[0])
		}
		buckets[i] = AgingBucket{
			Label:       label,
			MinDays:     r[0],
			MaxDays:     r[1],
			Outstanding: decimal.Zero,
			Percentage:  decimal.Zero,
		}
	}
	return buckets
}

// DetectOverdue returns the invoices overdue at now for the given grace, oldest first
func DetectOverdue(invoices []*Invoice, now time.Time, graceDays int) []OverdueInvoice {
	overdue := make([]OverdueInvoice, 0)
	for _, inv := range invoices {
		if inv == nil || !inv.IsOverdue(now, graceDays) {
			continue
		}
		overdue = append(overdue, OverdueInvoice{
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.InvoiceNumber,
			ClientID:      inv.ClientID,
			DueDate:       inv.DueDate,
			DaysOverdue:   inv.DaysOverdue(now, graceDays),
			Outstanding:   inv.Outstanding(),
		})
	}
	sortOverdue(overdue)
	return overdue
}

// BuildAgingReport buckets overdue invoices by days past due date plus grace.
// Invoices less than one full day overdue are not aged yet.
func BuildAgingReport(invoices []*Invoice, now time.Time, graceDays int) *AgingReport {
	report := &AgingReport{
		AsOf:             now,
		GraceDays:        graceDays,
		Buckets:          NewAgingBuckets(),
		TotalOutstanding: decimal.Zero,
	}

	for _, item := range DetectOverdue(invoices, now, graceDays) {
		for i := range report.Buckets {
			if !report.Buckets[i].Contains(item.DaysOverdue) {
				continue
			}
			report.Buckets[i].Count++
			report.Buckets[i].Outstanding = report.Buckets[i].Outstanding.Add(item.Outstanding)
			report.TotalCount++
			report.TotalOutstanding = report.TotalOutstanding.Add(item.Outstanding)
			break
		}
	}

	if report.TotalOutstanding.IsPositive() {
		hundred := decimal.NewFromInt(100)
		for i := range report.Buckets {
			report.Buckets[i].Percentage = report.Buckets[i].Outstanding.
				Mul(hundred).
				DivRound(report.TotalOutstanding, 2)
		}
	}
	return report
}

func sortOverdue(items []OverdueInvoice) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].DaysOverdue > items[j].DaysOverdue
	})
}
