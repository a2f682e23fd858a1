package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yodabot/support-desk/internal/config"
	"github.com/yodabot/support-desk/internal/service"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print ticket counts from the store",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print stats as JSON")
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	svc := service.NewTicketService(st, log, serviceOptions(cfg, nil))
	stats, err := svc.Stats(ctx)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	if statsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "open:   %d\nclosed: %d\ntotal:  %d\n", stats.Open, stats.Closed, stats.Total)
	return nil
}
