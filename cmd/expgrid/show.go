package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/expgrid/expgrid/internal/engine"
)

var showLimit int

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Summarize experiment status counts and the most recent rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		ctx := cmd.Context()

		counts, err := statusCounts(ctx, e)
		if err != nil {
			return err
		}
		printCounts(counts)

		rows, err := recentRows(ctx, e, showLimit)
		if err != nil {
			return err
		}
		printRows(rows)
		return nil
	},
}

type countRow struct {
	Status string
	Count  int
}

func statusCounts(ctx context.Context, e *engine.Engine) ([]countRow, error) {
	query := fmt.Sprintf("SELECT status, COUNT(*) FROM %s GROUP BY status ORDER BY status", e.Table().Name)
	rows, err := e.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("expgrid: reading status counts: %w", err)
	}
	defer rows.Close()

	var result []countRow
	for rows.Next() {
		var c countRow
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, fmt.Errorf("expgrid: scanning status count: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func recentRows(ctx context.Context, e *engine.Engine, limit int) ([]map[string]any, error) {
	query := fmt.Sprintf("SELECT id, status, creation_date FROM %s ORDER BY id DESC LIMIT %d", e.Table().Name, limit)
	rows, err := e.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("expgrid: reading recent rows: %w", err)
	}
	defer rows.Close()

	var result []map[string]any
	for rows.Next() {
		var id int64
		var st, creationDate any
		if err := rows.Scan(&id, &st, &creationDate); err != nil {
			return nil, fmt.Errorf("expgrid: scanning recent row: %w", err)
		}
		result = append(result, map[string]any{"id": id, "status": st, "creation_date": creationDate})
	}
	return result, rows.Err()
}

func init() {
	showCmd.Flags().StringVar(&credentialsPath, "credentials", "", "path to the credentials document (required for the mysql provider)")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "number of recent rows to display")
	rootCmd.AddCommand(showCmd)
}

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

func printCounts(counts []countRow) {
	fmt.Println(strings.Repeat("-", termWidth()))
	for _, c := range counts {
		fmt.Printf("%-24s %d\n", c.Status, c.Count)
	}
}

func printRows(rows []map[string]any) {
	fmt.Println(strings.Repeat("-", termWidth()))
	for _, row := range rows {
		id := row["id"]
		st := row["status"]
		var when string
		if raw, ok := row["creation_date"].(string); ok && raw != "" {
			if t, err := time.Parse("01/02/2006, 15:04:05", raw); err == nil {
				when = humanize.Time(t)
			} else {
				when = raw
			}
		}
		fmt.Printf("#%v  %-20v  %s\n", id, st, when)
	}
}
