package persistence

import (
	"strings"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	if strings.ToUpper(strings.TrimSpace(orderDir)) == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// InvoiceSortFields contains allowed sort fields for invoice listings
var InvoiceSortFields = map[string]bool{
	"created_at":     true,
	"due_date":       true,
	"amount":         true,
	"invoice_number": true,
	"payment_status": true,
}

// PaymentSortFields contains allowed sort fields for payment listings
var PaymentSortFields = map[string]bool{
	"created_at": true,
	"trans_time": true,
	"amount":     true,
	"status":     true,
}

// orderClause builds a safe ORDER BY clause with id as the tie-breaker
func orderClause(orderBy, orderDir string, allowed map[string]bool) string {
	field := ValidateSortField(orderBy, allowed, "created_at")
	dir := ValidateSortOrder(orderDir)
	return field + " " + dir + ", id " + dir
}
