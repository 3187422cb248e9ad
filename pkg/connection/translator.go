package connection

import (
	"strings"

	"github.com/nnnkkk7/sqlrunner/pkg/query"
	"github.com/nnnkkk7/sqlrunner/pkg/scanner"
)

// Dialect identifies the SQL dialect spoken by a driver.
type Dialect string

// Supported dialects.
const (
	DialectGeneric   Dialect = "generic"
	DialectDuckDB    Dialect = "duckdb"
	DialectSnowflake Dialect = "snowflake"
)

// DialectForDriver returns the dialect for a database/sql driver name.
func DialectForDriver(driver string) Dialect {
	switch strings.ToLower(driver) {
	case "duckdb":
		return DialectDuckDB
	case "snowflake":
		return DialectSnowflake
	default:
		return DialectGeneric
	}
}

// Translator rewrites the few portable statements the pipeline issues into
// the dialect of the connected database. Everything else passes through
// untouched.
type Translator struct {
	dialect Dialect
}

// NewTranslator creates a translator for dialect.
func NewTranslator(dialect Dialect) *Translator {
	return &Translator{dialect: dialect}
}

// Translate converts SET CATALOG <name> into the dialect's equivalent:
// USE <name> on DuckDB and USE DATABASE <name> on Snowflake.
func (t *Translator) Translate(sql string) string {
	if t.dialect == DialectGeneric {
		return sql
	}
	kw := scanner.Keywords(sql, 2)
	if len(kw) < 2 || kw[0] != "SET" || kw[1] != "CATALOG" {
		return sql
	}
	name, ok := query.ParseCatalogSwitch(sql)
	if !ok {
		return sql
	}

	switch t.dialect {
	case DialectDuckDB:
		return "USE " + query.QuoteIdentifier(name)
	case DialectSnowflake:
		return "USE DATABASE " + query.QuoteIdentifier(name)
	default:
		return sql
	}
}
