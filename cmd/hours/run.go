package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/the-hours-must-flow/internal/cli"
	"github.com/Veraticus/the-hours-must-flow/internal/engine"
	"github.com/Veraticus/the-hours-must-flow/internal/model"
	"github.com/Veraticus/the-hours-must-flow/internal/router"
	"github.com/Veraticus/the-hours-must-flow/internal/service"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Match recent meetings to tasks and log time",
		Long: `Fetch meetings from your calendar, skip the ones already logged, match the
rest against the task catalog and post confident matches as time entries.
Everything else lands in the review queue.

Examples:
  hours run                               # the last lookback_days days
  hours run --days 1                      # yesterday and today
  hours run --since 2025-01-06 --until 2025-01-10`,
		RunE: runRun,
	}

	cmd.Flags().Int("days", 0, "days to look back (default: engine.lookback_days)")
	cmd.Flags().String("since", "", "first day to include (YYYY-MM-DD)")
	cmd.Flags().String("until", "", "last day to include (YYYY-MM-DD, default today)")
	cmd.Flags().Bool("no-progress", false, "disable the progress bar")

	_ = viper.BindPFlag("run.days", cmd.Flags().Lookup("days"))
	_ = viper.BindPFlag("run.since", cmd.Flags().Lookup("since"))
	_ = viper.BindPFlag("run.until", cmd.Flags().Lookup("until"))
	_ = viper.BindPFlag("run.no_progress", cmd.Flags().Lookup("no-progress"))

	return cmd
}

func runRun(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	days := viper.GetInt("run.days")
	if days == 0 {
		days = a.cfg.Engine.LookbackDays
	}
	dateRange, err := parseDateRange(viper.GetString("run.since"), viper.GetString("run.until"), days, time.Now(), a.cfg.Timezone())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	interrupts := cli.NewInterruptHandler(cmd.ErrOrStderr(),
		"Posted entries are saved. Run hours run again to pick up the rest.")
	ctx, stop := interrupts.HandleInterrupts(cmd.Context())
	defer stop()

	var opts []engine.Option
	var progress *cli.RunProgress
	if !viper.GetBool("run.no_progress") {
		progress = cli.NewRunProgress(cmd.ErrOrStderr())
		opts = append(opts, engine.WithProgress(progress.Update))
	}

	r, err := a.runner(ctx, opts...)
	if err != nil {
		return err
	}

	// Older ledgers may still carry doubled-subject keys that dedup would miss.
	report, err := a.ledger.MigrateLegacy(ctx)
	if err != nil {
		return fmt.Errorf("ledger migration failed: %w", err)
	}
	if report.Rewritten > 0 || report.Dropped > 0 {
		a.logger.Info("Migrated legacy ledger entries",
			"rewritten", report.Rewritten,
			"dropped", report.Dropped)
	}

	a.logger.Info("Starting run",
		"user_id", a.userID(),
		"from", dateRange.Start.Format(model.DateLayout),
		"to", dateRange.End.Add(-time.Nanosecond).Format(model.DateLayout))

	result, runErr := r.Run(ctx, a.userID(), dateRange)
	if progress != nil {
		progress.Finish()
	}
	if result != nil {
		writeLine(out, renderSummary(result))
	}
	if runErr != nil {
		if interrupts.WasInterrupted() {
			return nil
		}
		return runErr
	}
	return nil
}

// parseDateRange turns the run flags into a half-open range of whole days
// in loc. until defaults to today; since defaults to days before until.
func parseDateRange(since, until string, days int, now time.Time, loc *time.Location) (service.DateRange, error) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	last := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	if until != "" {
		t, err := time.ParseInLocation(model.DateLayout, until, loc)
		if err != nil {
			return service.DateRange{}, fmt.Errorf("invalid --until %q (use YYYY-MM-DD): %w", until, err)
		}
		last = t
	}

	first := last.AddDate(0, 0, -max(days, 1))
	if since != "" {
		t, err := time.ParseInLocation(model.DateLayout, since, loc)
		if err != nil {
			return service.DateRange{}, fmt.Errorf("invalid --since %q (use YYYY-MM-DD): %w", since, err)
		}
		first = t
	}

	end := last.AddDate(0, 0, 1)
	if !first.Before(end) {
		return service.DateRange{}, fmt.Errorf("--since %s is after --until %s",
			first.Format(model.DateLayout), last.Format(model.DateLayout))
	}
	return service.DateRange{Start: first, End: end}, nil
}

func renderSummary(r *engine.RunResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Meetings:   %d\n", r.Total)
	fmt.Fprintf(&b, "Posted:     %s\n", cli.SuccessStyle.Render(fmt.Sprintf("%d (%.2f hours)", len(r.Posted), r.PostedHours())))
	fmt.Fprintf(&b, "For review: %s\n", cli.WarningStyle.Render(fmt.Sprintf("%d", len(r.Queued))))
	fmt.Fprintf(&b, "Duplicates: %d\n", len(r.Duplicates))
	fmt.Fprintf(&b, "Skipped:    %d", len(r.Skipped))

	if len(r.Buckets) > 0 {
		b.WriteString("\n\nConfidence:")
		for _, bucket := range []router.Bucket{router.BucketHigh, router.BucketMedium, router.BucketLow, router.BucketUnmatched} {
			if n := r.Buckets[bucket]; n > 0 {
				fmt.Fprintf(&b, "\n  %-10s %d", bucket, n)
			}
		}
	}

	if len(r.Failures) > 0 {
		b.WriteString("\n\n" + cli.ErrorStyle.Render(fmt.Sprintf("Failures: %d", len(r.Failures))))
		failures := append([]engine.Failure(nil), r.Failures...)
		sort.SliceStable(failures, func(i, j int) bool { return failures[i].Stage < failures[j].Stage })
		for _, f := range failures {
			fmt.Fprintf(&b, "\n  [%s] %s: %v", f.Stage, subjectOrID(f.Subject, f.MeetingID), f.Err)
		}
	}

	return cli.RenderBox(fmt.Sprintf("Run %s", shortID(r.RunID)), b.String())
}

func subjectOrID(subject, id string) string {
	if strings.TrimSpace(subject) != "" {
		return subject
	}
	return id
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func writeLine(w io.Writer, s string) {
	_, _ = fmt.Fprintln(w, s)
}
