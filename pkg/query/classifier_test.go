package query

import "testing"

func TestClassifier_Classify(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		sql  string
		want StatementKind
	}{
		{"SELECT 1", KindQuery},
		{"select * from t where a = 1;", KindQuery},
		{"(SELECT 1) UNION (SELECT 2)", KindQuery},
		{"WITH cte AS (SELECT 1) SELECT * FROM cte", KindQuery},
		{"-- comment\nSHOW TABLES", KindQuery},
		{"DESCRIBE t", KindQuery},
		{"FROM t", KindQuery},
		{"INSERT INTO t VALUES (1)", KindDML},
		{"update t set a = 2", KindDML},
		{"DELETE FROM t", KindDML},
		{"COPY t FROM 'x.csv'", KindDML},
		{"CREATE TABLE t (a INT)", KindDDL},
		{"DROP TABLE t", KindDDL},
		{"ATTACH ':memory:' AS other", KindDDL},
		{"SET CATALOG sales", KindSession},
		{"USE sales", KindSession},
		{"BEGIN", KindTransaction},
		{"START TRANSACTION", KindTransaction},
		{"COMMIT", KindTransaction},
		{"START something", KindOther},
		{"VACUUM", KindOther},
		{"", KindOther},
	}

	for _, tt := range tests {
		got := c.Classify(tt.sql)
		if got.Kind != tt.want {
			t.Errorf("Classify(%q).Kind = %s, want %s", tt.sql, got.Kind, tt.want)
		}
		if got.IsQuery != (tt.want == KindQuery) {
			t.Errorf("Classify(%q).IsQuery = %v", tt.sql, got.IsQuery)
		}
	}
}

func TestIsQuery(t *testing.T) {
	if !IsQuery("/* x */ select 1") {
		t.Error("IsQuery() = false for a SELECT")
	}
	if IsQuery("INSERT INTO t VALUES (1)") {
		t.Error("IsQuery() = true for an INSERT")
	}
}
