package billing

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/samber/lo"
)

// InvoiceNumberPrefix starts every invoice number
const InvoiceNumberPrefix = "INV_"

const (
	invoiceNumberSuffixLen = 5
	transIDSuffixLen       = 6
)

var invoiceNumberPattern = regexp.MustCompile(`^INV_[A-Z0-9]{5}$`)

// IsValidInvoiceNumber reports whether s has the INV_XXXXX shape
func IsValidInvoiceNumber(s string) bool {
	return invoiceNumberPattern.MatchString(s)
}

// ReferenceGenerator produces invoice numbers and synthetic transaction ids
type ReferenceGenerator interface {
	// InvoiceNumber returns a candidate invoice number; callers retry on collision
	InvoiceNumber() string
	// TransactionID builds a reference for a manually entered payment
	TransactionID(method PaymentMethod, at time.Time) string
}

// RandomReferenceGenerator draws references from uppercase letters and digits
type RandomReferenceGenerator struct {
	charset []rune
}

// NewRandomReferenceGenerator creates the default generator
func NewRandomReferenceGenerator() *RandomReferenceGenerator {
	charset := make([]rune, 0, len(lo.UpperCaseLettersCharset)+len(lo.NumbersCharset))
	charset = append(charset, lo.UpperCaseLettersCharset...)
	charset = append(charset, lo.NumbersCharset...)
	return &RandomReferenceGenerator{charset: charset}
}

// InvoiceNumber returns INV_ followed by 5 random alphanumerics
func (g *RandomReferenceGenerator) InvoiceNumber() string {
	return InvoiceNumberPrefix + lo.RandomString(invoiceNumberSuffixLen, g.charset)
}

// TransactionID returns METHOD_yyyymmddHHMMSS_SUFFIX
func (g *RandomReferenceGenerator) TransactionID(method PaymentMethod, at time.Time) string {
	return fmt.Sprintf("%s_%s_%s",
		strings.ToUpper(string(method)),
		at.UTC().Format("20060102150405"),
		lo.RandomString(transIDSuffixLen, g.charset),
	)
}
