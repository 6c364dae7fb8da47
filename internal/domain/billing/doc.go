// Package billing provides the domain model for recurring client billing and payment reconciliation.
//
// This package implements the reconciliation bounded context, which is responsible for:
//   - Holding each client's recurring contract terms (rate, service start, grace period)
//   - The invoice and payment ledgers and their money invariants
//   - FIFO allocation of payments to invoices and of credit to new invoices
//   - Overdue detection and aging-bucket reporting
//
// Key Aggregates:
//   - Invoice: an obligation owed by a client, monthly or custom
//   - Payment: money received from a client, allocated across invoices
//
// Value Objects:
//   - Contract: recurring billing terms read by the invoice generator
//   - AgingReport: overdue invoices grouped by age
//
// Invoices and payments reference each other redundantly (payment ids on the invoice,
// invoice ids on the payment). Both sides are only ever written together by Allocate*.
package billing
