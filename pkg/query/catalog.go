package query

import (
	"regexp"
	"strings"

	"github.com/nnnkkk7/sqlrunner/pkg/scanner"
)

const identifierPattern = `("(?:[^"]|"")+"|'(?:[^']|'')+'|[A-Za-z_][A-Za-z0-9_$]*)`

var (
	setCatalogRe = regexp.MustCompile(`(?i)^SET\s+CATALOG(?:\s*=\s*|\s+TO\s+|\s+)` + identifierPattern + `$`)
	// USE catalog.schema also selects the catalog; only the first part counts.
	useCatalogRe = regexp.MustCompile(`(?i)^USE\s+(?:(?:DATABASE|CATALOG)\s+)?` + identifierPattern + `(?:\.` + identifierPattern + `)?$`)
	plainIdentRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)
)

// ParseCatalogSwitch reports whether sql switches the current catalog and, if
// so, to which one. It recognizes SET CATALOG <name> (with optional = or TO)
// and USE [DATABASE|CATALOG] <name>[.<schema>]. Keywords are case-insensitive and the
// identifier keeps its case; quoted identifiers are unquoted.
func ParseCatalogSwitch(sql string) (string, bool) {
	normalized := scanner.Normalize(sql)
	for _, re := range []*regexp.Regexp{setCatalogRe, useCatalogRe} {
		if m := re.FindStringSubmatch(normalized); m != nil {
			return unquoteIdentifier(m[1]), true
		}
	}
	return "", false
}

// SetCatalogSQL builds the SET CATALOG statement for name, quoting the name
// when it is not a plain identifier.
func SetCatalogSQL(name string) string {
	return "SET CATALOG " + QuoteIdentifier(name)
}

// QuoteIdentifier returns name unchanged when it is a plain identifier and
// double-quoted otherwise.
func QuoteIdentifier(name string) string {
	if plainIdentRe.MatchString(name) {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func unquoteIdentifier(ident string) string {
	if len(ident) >= 2 {
		switch q := ident[0]; q {
		case '"', '\'':
			if ident[len(ident)-1] == q {
				inner := ident[1 : len(ident)-1]
				return strings.ReplaceAll(inner, string([]byte{q, q}), string(q))
			}
		}
	}
	return ident
}
