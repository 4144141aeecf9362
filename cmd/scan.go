package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Zhannyhong/cdc-bot/config"
	"github.com/Zhannyhong/cdc-bot/core/booking"
	"github.com/Zhannyhong/cdc-bot/infra/logger"
	"github.com/Zhannyhong/cdc-bot/infra/portal"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Log in, scrape every monitored category once and print the result",
	RunE:  runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	p, err := portal.New(cfg.Portal, logger.New("portal"))
	if err != nil {
		return fmt.Errorf("portal: %w", err)
	}
	defer p.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := p.Login(ctx); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer func() {
		if err := p.Logout(ctx); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "logout failed: %v\n", err)
		}
	}()

	statement, err := p.RefreshStatement(ctx)
	if err != nil {
		return fmt.Errorf("refresh statement: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, cat := range cfg.Program.MonitoredCategories() {
		opened, err := p.OpenBookingPage(ctx, cat, statement.LessonNames[booking.Practical])
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", cat, err)
			continue
		}
		if !opened {
			fmt.Fprintf(out, "%s: booking page not accessible\n", cat)
			continue
		}
		view, err := p.RefreshGrid(ctx, cat)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", cat, err)
			continue
		}
		fmt.Fprintf(out, "%s: %d available, %d reserved, %d booked in view\n",
			cat, view.Available.Count(), view.Reserved.Count(), view.Booked.Count())
		for _, slot := range view.Available.Flatten() {
			fmt.Fprintf(out, "  %s %s\n", slot.Day, slot.Time)
		}
	}
	return nil
}
