package query

import (
	"github.com/blastrain/vitess-sqlparser/sqlparser"

	"github.com/nnnkkk7/sqlrunner/pkg/scanner"
)

// StatementKind represents the category of a SQL statement.
type StatementKind string

// Statement kinds.
const (
	KindQuery       StatementKind = "query"       // SELECT, SHOW, DESCRIBE, WITH ...
	KindDML         StatementKind = "dml"         // INSERT, UPDATE, DELETE, MERGE, COPY
	KindDDL         StatementKind = "ddl"         // CREATE, DROP, ALTER, ...
	KindSession     StatementKind = "session"     // SET, USE, RESET
	KindTransaction StatementKind = "transaction" // BEGIN, COMMIT, ROLLBACK
	KindOther       StatementKind = "other"
)

// Classifier provides SQL statement classification functionality.
type Classifier struct {
	keywords map[string]StatementKind
}

// NewClassifier creates a new SQL classifier.
func NewClassifier() *Classifier {
	c := &Classifier{keywords: make(map[string]StatementKind)}
	c.register(KindQuery, "SELECT", "SHOW", "DESCRIBE", "DESC", "EXPLAIN", "WITH", "VALUES", "TABLE", "PRAGMA", "SUMMARIZE", "FROM", "CALL")
	c.register(KindDML, "INSERT", "UPDATE", "DELETE", "MERGE", "COPY", "UPSERT", "REPLACE")
	c.register(KindDDL, "CREATE", "DROP", "ALTER", "TRUNCATE", "ATTACH", "DETACH", "COMMENT", "GRANT", "REVOKE")
	c.register(KindSession, "SET", "USE", "RESET")
	c.register(KindTransaction, "BEGIN", "START", "COMMIT", "ROLLBACK", "ABORT", "END")
	return c
}

func (c *Classifier) register(kind StatementKind, keywords ...string) {
	for _, kw := range keywords {
		c.keywords[kw] = kind
	}
}

// ClassifyResult contains the classification result of a SQL statement.
type ClassifyResult struct {
	Kind    StatementKind
	IsQuery bool
	IsDDL   bool
	IsDML   bool
}

// Classify analyzes a SQL statement and returns its classification.
//
// Statements the parser understands are classified from their AST; anything
// else (dialect syntax the parser rejects) falls back to the leading keyword.
func (c *Classifier) Classify(sql string) ClassifyResult {
	kind := c.classifyAST(sql)
	if kind == "" {
		kind = c.classifyKeyword(sql)
	}
	return ClassifyResult{
		Kind:    kind,
		IsQuery: kind == KindQuery,
		IsDDL:   kind == KindDDL,
		IsDML:   kind == KindDML,
	}
}

func (c *Classifier) classifyAST(sql string) StatementKind {
	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return ""
	}
	switch stmt.(type) {
	case *sqlparser.Select, *sqlparser.Union, *sqlparser.ParenSelect, *sqlparser.Show:
		return KindQuery
	case *sqlparser.Insert, *sqlparser.Update, *sqlparser.Delete:
		return KindDML
	case *sqlparser.Set:
		return KindSession
	default:
		return ""
	}
}

func (c *Classifier) classifyKeyword(sql string) StatementKind {
	tokens := scanner.Keywords(sql, 2)
	if len(tokens) == 0 {
		return KindOther
	}
	kind, ok := c.keywords[tokens[0]]
	if !ok {
		return KindOther
	}
	// START is only a transaction statement as START TRANSACTION.
	if tokens[0] == "START" && (len(tokens) < 2 || tokens[1] != "TRANSACTION") {
		return KindOther
	}
	return kind
}

// DefaultClassifier is the default SQL classifier instance.
var DefaultClassifier = NewClassifier()

// ClassifySQL is a convenience function using the default classifier.
func ClassifySQL(sql string) ClassifyResult {
	return DefaultClassifier.Classify(sql)
}

// IsQuery is a convenience function to check if SQL returns rows.
func IsQuery(sql string) bool {
	return DefaultClassifier.Classify(sql).IsQuery
}
