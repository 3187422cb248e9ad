package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nnnkkk7/sqlrunner/pkg/metrics"
	"github.com/nnnkkk7/sqlrunner/pkg/query"
	"github.com/nnnkkk7/sqlrunner/pkg/scanner"
	"github.com/nnnkkk7/sqlrunner/pkg/session"
)

// readInput reads the named file, or stdin when the name is empty or "-".
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return string(data), nil
}

func newRunCommand(a *app) *cobra.Command {
	var (
		cursor   int
		asJSON   bool
		catalog  string
		failFast bool
	)
	cmd := &cobra.Command{
		Use:   "run [file]",
		Short: "run a SQL file in one session and print the results",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			db, opener, err := openDatabase(a.cfg.Database)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			opts := sessionOptions(a.cfg, a.lg, metrics.New(nil))
			if catalog != "" {
				opts.Catalog = catalog
			}
			s := session.New(opener, opts)
			defer func() { _ = s.Close() }()

			if err := s.Open(cmd.Context()); err != nil {
				return err
			}

			req := session.RunRequest{Text: text, Mode: session.RunAll}
			if cmd.Flags().Changed("cursor") {
				req.Mode, req.CursorOffset = session.RunCursor, cursor
			}
			results, err := s.Run(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			} else {
				for i, res := range results {
					if i > 0 {
						fmt.Fprintln(out)
					}
					printResult(out, res)
				}
			}

			if failFast {
				for _, res := range results {
					if res.Failed() {
						return fmt.Errorf("statement failed: %s", res.Statement)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&cursor, "cursor", 0, "run only the statement at this character offset")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	cmd.Flags().StringVar(&catalog, "catalog", "", "catalog to select before running")
	cmd.Flags().BoolVar(&failFast, "fail", false, "exit non-zero when any statement fails")
	return cmd
}

// printResult writes the messages of res followed by its preview rows.
func printResult(w io.Writer, res query.Result) {
	for _, msg := range res.Messages {
		fmt.Fprintln(w, msg)
	}
	if len(res.Columns) == 0 {
		return
	}
	fmt.Fprintln(w, strings.Join(res.Columns, "\t"))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
				continue
			}
			cells[i] = fmt.Sprint(v)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
}

func newSplitCommand(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "split [file]",
		Short: "print the statements of a SQL file with their offsets",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			stmts := scanner.Scan(text)
			if stmts == nil {
				stmts = []scanner.Statement{}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stmts)
		},
	}
}
