// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/relforge/cmd/relforge/config"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/ledger"
	"github.com/AleutianAI/relforge/pkg/ux"
)

var errLedgerDisabled = errors.New("release history is disabled")

func (c *cli) historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent release attempts",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := c.openHistory()
			if err != nil {
				return err
			}
			defer l.Close()

			records, err := l.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				ux.Info("no releases recorded")
				return nil
			}
			ux.Table([]string{"RUN", "STARTED", "TAG", "OUTCOME", "ASSETS", "DURATION", "DETAIL"}, historyRows(records))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show (0 for all)")
	cmd.AddCommand(c.historyShowCmd())
	return cmd
}

func (c *cli) historyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show one release attempt, the latest by default",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 {
				return &usageError{err: errNoArgs}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := c.openHistory()
			if err != nil {
				return err
			}
			defer l.Close()

			var rec ledger.Record
			if len(args) == 1 {
				rec, err = l.Get(cmd.Context(), args[0])
			} else {
				rec, err = l.Latest(cmd.Context())
			}
			if errors.Is(err, ledger.ErrNotFound) && len(args) == 0 {
				ux.Info("no releases recorded")
				return nil
			}
			if err != nil {
				return err
			}
			ux.KeyValue(recordRows(rec))
			return nil
		},
	}
}

func (c *cli) openHistory() (*ledger.Ledger, error) {
	if !c.cfg.Ledger.Enabled {
		return nil, &config.Error{Field: "ledger.enabled", Err: errLedgerDisabled}
	}
	return ledger.Open(ledger.StoreConfig{
		Path:   c.cfg.Path(c.cfg.Ledger.Path),
		Logger: c.logger,
	})
}

func recordRows(r ledger.Record) [][2]string {
	rows := [][2]string{
		{"run", r.RunID},
		{"outcome", string(r.Outcome)},
		{"started", r.StartedAt.Local().Format(time.RFC3339)},
		{"duration", r.Duration().Round(time.Millisecond).String()},
	}
	if r.Tag != "" {
		rows = append(rows, [2]string{"tag", r.Tag}, [2]string{"counter", strconv.Itoa(r.Counter)})
	}
	if r.ReleaseURL != "" {
		rows = append(rows, [2]string{"release", r.ReleaseURL})
	}
	for _, list := range []struct {
		key   string
		items []string
	}{{"uploaded", r.Uploaded}, {"missing", r.Missing}, {"failed", r.Failed}} {
		if len(list.items) > 0 {
			rows = append(rows, [2]string{list.key, strings.Join(list.items, ", ")})
		}
	}
	if r.Error != "" {
		rows = append(rows, [2]string{"error", r.Error})
	}
	return rows
}

func historyRows(records []ledger.Record) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		tag := r.Tag
		if tag == "" {
			tag = "-"
		}
		detail := r.ReleaseURL
		if r.Outcome == ledger.OutcomeFailed {
			detail = truncate(r.Error, 60)
		}
		assets := strconv.Itoa(len(r.Uploaded))
		if n := len(r.Missing) + len(r.Failed); n > 0 {
			assets += "/" + strconv.Itoa(len(r.Uploaded)+n)
		}
		rows = append(rows, []string{
			r.RunID,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			tag,
			string(r.Outcome),
			assets,
			r.Duration().Round(time.Second).String(),
			detail,
		})
	}
	return rows
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
