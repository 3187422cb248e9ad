// Example: Using sqlrunner as an Embedded Library
//
// This example runs an editor-style SQL buffer against an in-memory DuckDB
// database without starting the HTTP server: first every statement, then only
// the statement under a cursor.
//
// Run this example:
//
//	go run ./example/embedded
package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"go.uber.org/zap"

	"github.com/nnnkkk7/sqlrunner/pkg/connection"
	"github.com/nnnkkk7/sqlrunner/pkg/query"
	"github.com/nnnkkk7/sqlrunner/pkg/session"
)

const buffer = `-- inventory
CREATE TABLE items (id INTEGER, name VARCHAR, qty INTEGER);
INSERT INTO items VALUES (1, 'bolt', 120), (2, 'nut; hex', 75), (3, 'washer', 0);

/* the next statement fails, the batch keeps going */
SELECT * FROM missing_table;

SELECT name, qty FROM items WHERE qty > 0 ORDER BY qty DESC;
`

func main() {
	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	db, err := sql.Open("duckdb", "")
	if err != nil {
		lg.Fatal("failed to open DuckDB", zap.Error(err))
	}
	defer db.Close()

	s := session.New(connection.NewSQLOpener(db, connection.DialectDuckDB), session.Options{
		QueryTimeout: 10 * time.Second,
		PreviewLimit: 10,
		Logger:       lg,
	})
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	if err := s.Open(ctx); err != nil {
		lg.Fatal("failed to connect", zap.Error(err))
	}

	fmt.Println("=== Run all ===")
	results, err := s.Run(ctx, session.RunRequest{Text: buffer, Mode: session.RunAll})
	if err != nil {
		lg.Fatal("invalid request", zap.Error(err))
	}
	for _, res := range results {
		printResult(res)
	}

	fmt.Println("=== Run under cursor ===")
	cursor := strings.Index(buffer, "SELECT name")
	results, err = s.Run(ctx, session.RunRequest{Text: buffer, Mode: session.RunCursor, CursorOffset: cursor})
	if err != nil {
		lg.Fatal("invalid request", zap.Error(err))
	}
	for _, res := range results {
		printResult(res)
	}
}

func printResult(res query.Result) {
	fmt.Printf("[%s]\n", res.Status)
	for _, msg := range res.Messages {
		fmt.Println("  " + msg)
	}
	for _, row := range res.Rows {
		fmt.Printf("  %v\n", row)
	}
	fmt.Println()
}
