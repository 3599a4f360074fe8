package reconcile

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Character classes follow the backend's Unicode regex semantics, not RE2's
// ASCII defaults: \w is letters, digits and underscore; \s includes the
// separator category and the C0 file/group/record/unit separators.
const (
	wordClass  = `\p{L}\p{N}_`
	spaceClass = `\t\n\v\f\r\x{1c}-\x{1f}\x{85}\p{Z}`
)

var (
	nonWordRe = regexp.MustCompile(`[^` + wordClass + spaceClass + `]`)

	// Leading and trailing whitespace as the backend's strip() sees it
	edgeSpaceRe = regexp.MustCompile(`^[` + spaceClass + `]+|[` + spaceClass + `]+$`)

	// Trailing pack size such as "100ML", "10 MG", "500 TAB"
	packSizeRe = regexp.MustCompile(`(?i)[` + spaceClass + `]*\p{Nd}+[` + spaceClass + `]*(ML|MG|GM|G|KG|L|TAB|TABLET|SYP|SYRUP|EXP|EXPT)[` + spaceClass + `]*$`)
)

// Casers carry state and are not safe for concurrent use, so each call builds its own.
func upper(s string) string { return cases.Upper(language.Und).String(s) }

func lower(s string) string { return cases.Lower(language.Und).String(s) }

// maxNormalizePasses bounds the fixpoint loop in Normalize
const maxNormalizePasses = 16

// ServerForm reproduces the backend's product normalization exactly:
// strip punctuation, trim, upper-case, drop one trailing pack size, remove spaces.
// It is what the backend embeds in product keys.
func ServerForm(s string) string {
	s = nonWordRe.ReplaceAllString(s, "")
	s = edgeSpaceRe.ReplaceAllString(s, "")
	s = upper(s)
	s = packSizeRe.ReplaceAllString(s, "")
	return strings.ReplaceAll(s, " ", "")
}

// Normalize returns the grouping form of a product name. Two names the backend
// considers the same product always normalize to the same string, and
// Normalize(Normalize(s)) == Normalize(s).
//
// The backend only strips one pack size, so "X 10MG 20ML" becomes "X10MG" there
// and "x" here. Such names are grouped more eagerly than the backend matches them.
func Normalize(s string) string {
	cur := lower(ServerForm(s))
	for i := 0; i < maxNormalizePasses; i++ {
		next := lower(ServerForm(cur))
		if next == cur {
			break
		}
		cur = next
	}
	return cur
}

// ProductKeyFragment returns the product part of a split-rule key
func ProductKeyFragment(productNames string) string {
	return ServerForm(productNames)
}

// ProductKey builds "{pharmacy_id}|EXACT|{normalized_product}" the way the backend does
func ProductKey(pharmacyID, productNames string) string {
	return pharmacyID + "|EXACT|" + ProductKeyFragment(productNames)
}

// ParseProductKey splits a product key. ok is false for keys that are not EXACT keys.
func ParseProductKey(key string) (pharmacyID, product string, ok bool) {
	parts := strings.SplitN(key, "|", 3)
	if len(parts) != 3 || parts[1] != "EXACT" {
		return "", "", false
	}
	return parts[0], parts[2], true
}
