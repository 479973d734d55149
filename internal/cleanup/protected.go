package cleanup

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// protectedPartnerNames are system partners kept when company defaults are
// retained. Matching is a case-folded substring match on NFKC-normalized
// names.
var protectedPartnerNames = []string{
	"Your Company",
	"Administrator",
	"Email Alias",
	"External IP",
}

// DefaultCompanyName is the partner name excluded at the filter level.
const DefaultCompanyName = "Your Company"

func foldName(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	// a Caser is stateful and must not be shared between goroutines
	return cases.Fold().String(s)
}

// isProtectedPartner reports whether name belongs to a system partner.
func isProtectedPartner(name string) bool {
	folded := foldName(name)
	if folded == "" {
		return false
	}
	for _, p := range protectedPartnerNames {
		if strings.Contains(folded, foldName(p)) {
			return true
		}
	}
	return false
}
