package connection

import (
	"database/sql"
	"strings"

	"github.com/nnnkkk7/sqlrunner/pkg/query"
)

// Type family names reported in query.ColumnType.
const (
	TypeInteger     = "INTEGER"
	TypeFloat       = "FLOAT"
	TypeDecimal     = "DECIMAL"
	TypeText        = "TEXT"
	TypeBoolean     = "BOOLEAN"
	TypeDate        = "DATE"
	TypeTime        = "TIME"
	TypeTimestamp   = "TIMESTAMP"
	TypeTimestampTZ = "TIMESTAMPTZ"
	TypeBinary      = "BINARY"
	TypeJSON        = "JSON"
	TypeList        = "LIST"
	TypeStruct      = "STRUCT"
	TypeUnknown     = "UNKNOWN"
)

// TypeMapper maps driver type names onto a small set of type families.
type TypeMapper struct {
	typeMapping map[string]string
}

// NewTypeMapper creates a new type mapper with default mappings for DuckDB
// and Snowflake type names.
func NewTypeMapper() *TypeMapper {
	return &TypeMapper{
		typeMapping: map[string]string{
			// DuckDB
			"BIGINT":       TypeInteger,
			"INTEGER":      TypeInteger,
			"INT":          TypeInteger,
			"SMALLINT":     TypeInteger,
			"TINYINT":      TypeInteger,
			"HUGEINT":      TypeInteger,
			"UBIGINT":      TypeInteger,
			"UINTEGER":     TypeInteger,
			"USMALLINT":    TypeInteger,
			"UTINYINT":     TypeInteger,
			"DOUBLE":       TypeFloat,
			"FLOAT":        TypeFloat,
			"REAL":         TypeFloat,
			"DECIMAL":      TypeDecimal,
			"NUMERIC":      TypeDecimal,
			"VARCHAR":      TypeText,
			"TEXT":         TypeText,
			"STRING":       TypeText,
			"UUID":         TypeText,
			"INTERVAL":     TypeText,
			"ENUM":         TypeText,
			"BOOLEAN":      TypeBoolean,
			"BOOL":         TypeBoolean,
			"DATE":         TypeDate,
			"TIME":         TypeTime,
			"TIMESTAMP":    TypeTimestamp,
			"TIMESTAMP_NS": TypeTimestamp,
			"TIMESTAMP_MS": TypeTimestamp,
			"TIMESTAMP_S":  TypeTimestamp,
			"TIMESTAMPTZ":  TypeTimestampTZ,
			"BLOB":         TypeBinary,
			"BYTEA":        TypeBinary,
			"JSON":         TypeJSON,
			"LIST":         TypeList,
			"ARRAY":        TypeList,
			"STRUCT":       TypeStruct,
			"MAP":          TypeStruct,

			// Snowflake wire names
			"FIXED":         TypeDecimal,
			"BINARY":        TypeBinary,
			"TIMESTAMP_NTZ": TypeTimestamp,
			"TIMESTAMP_LTZ": TypeTimestampTZ,
			"TIMESTAMP_TZ":  TypeTimestampTZ,
			"VARIANT":       TypeJSON,
			"OBJECT":        TypeStruct,
		},
	}
}

// MapType converts a driver type name to its family. Parameters such as
// DECIMAL(18,3) are ignored and names ending in [] are lists. Unknown names
// are returned upper-cased as they are.
func (m *TypeMapper) MapType(dbType string) string {
	name := strings.ToUpper(strings.TrimSpace(dbType))
	if name == "" {
		return TypeUnknown
	}
	if strings.HasSuffix(name, "[]") {
		return TypeList
	}
	if i := strings.IndexByte(name, '('); i > 0 {
		name = name[:i]
	}
	if family, ok := m.typeMapping[name]; ok {
		return family
	}
	return name
}

// InferColumnTypes builds column metadata from column names and, when rows is
// not nil, the driver's column types.
func (m *TypeMapper) InferColumnTypes(columns []string, rows *sql.Rows) []query.ColumnType {
	colTypes := make([]query.ColumnType, len(columns))

	var driverTypes []*sql.ColumnType
	if rows != nil {
		if cts, err := rows.ColumnTypes(); err == nil {
			driverTypes = cts
		}
	}

	for i, col := range columns {
		meta := query.ColumnType{
			Name:     col,
			Type:     TypeUnknown,
			Nullable: true,
		}

		if i < len(driverTypes) {
			ct := driverTypes[i]
			meta.Type = m.MapType(ct.DatabaseTypeName())
			if length, ok := ct.Length(); ok {
				meta.Length = length
			}
			if precision, scale, ok := ct.DecimalSize(); ok {
				meta.Precision = precision
				meta.Scale = scale
			}
			if nullable, ok := ct.Nullable(); ok {
				meta.Nullable = nullable
			}
		}

		colTypes[i] = meta
	}

	return colTypes
}
