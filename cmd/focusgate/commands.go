package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"focusgate/internal/client"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show points, streaks and the current unlock session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			status, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
}

func printStatus(w io.Writer, s *client.Status) {
	p := s.Progress
	_, _ = fmt.Fprintf(w, "points: %d\nstreak: %d (longest %d)\nactivities: %d\nunlock sessions: %d\n",
		p.TotalPoints, p.CurrentStreak, p.LongestStreak, p.TotalActivities, p.TotalUnlockSessions)
	if len(p.Badges) > 0 {
		_, _ = fmt.Fprintf(w, "badges: %s\n", strings.Join(p.Badges, ", "))
	}
	if s.Covered {
		_, _ = fmt.Fprintf(w, "unlocked: %s remaining\n", time.Duration(s.RemainingSeconds)*time.Second)
	} else {
		_, _ = fmt.Fprintln(w, "unlocked: no")
	}
	if len(s.BlockedPackages) > 0 {
		_, _ = fmt.Fprintf(w, "blocked: %s\n", strings.Join(s.BlockedPackages, ", "))
	}
	if m := s.Monitor; m != nil {
		_, _ = fmt.Fprintf(w, "monitor: running=%t screen=%s checks=%d interventions=%d dropped=%d failures=%d\n",
			m.Running, m.Screen, m.Checks, m.Interventions, m.Dropped, m.Failures)
	}
}

func newAppsCmd(opts *rootOptions) *cobra.Command {
	apps := &cobra.Command{Use: "apps", Short: "Manage restricted apps"}

	apps.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List restricted apps",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			list, err := c.ListApps(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no restricted apps")
				return nil
			}
			for _, app := range list {
				printApp(cmd.OutOrStdout(), &app)
			}
			return nil
		},
	})

	var displayName string
	var dailyLimit time.Duration
	var unblocked bool
	add := &cobra.Command{
		Use:   "add <package>",
		Short: "Restrict an app, or update its settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			req := client.PutAppRequest{DisplayName: displayName}
			if cmd.Flags().Changed("daily-limit") {
				minutes := int(dailyLimit.Minutes())
				req.DailyLimitMinutes = &minutes
			}
			blocked := !unblocked
			req.Blocked = &blocked
			app, err := c.PutApp(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			printApp(cmd.OutOrStdout(), app)
			return nil
		},
	}
	add.Flags().StringVar(&displayName, "name", "", "display name (defaults to the package)")
	add.Flags().DurationVar(&dailyLimit, "daily-limit", 0, "daily time limit, e.g. 45m")
	add.Flags().BoolVar(&unblocked, "unblocked", false, "restrict without blocking yet")

	apps.AddCommand(add)
	apps.AddCommand(newBlockCmd(opts, "block", true))
	apps.AddCommand(newBlockCmd(opts, "unblock", false))

	apps.AddCommand(&cobra.Command{
		Use:   "remove <package>",
		Short: "Stop restricting an app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := c.DeleteApp(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	})

	apps.AddCommand(&cobra.Command{
		Use:   "usage <package> <duration>",
		Short: "Add foreground time to an app's usage today",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			used, err := time.ParseDuration(args[1])
			if err != nil || used < time.Second {
				return fmt.Errorf("invalid duration %q", args[1])
			}
			c, err := newClient(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			app, err := c.AddUsage(cmd.Context(), args[0], used)
			if err != nil {
				return err
			}
			printApp(cmd.OutOrStdout(), app)
			return nil
		},
	})

	apps.AddCommand(&cobra.Command{
		Use:   "extra-time <package> <duration>",
		Short: "Grant extra time on top of an app's daily limit for today",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			extra, err := time.ParseDuration(args[1])
			if err != nil || extra < time.Minute {
				return fmt.Errorf("invalid duration %q", args[1])
			}
			c, err := newClient(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			app, err := c.AddExtraTime(cmd.Context(), args[0], extra)
			if err != nil {
				return err
			}
			printApp(cmd.OutOrStdout(), app)
			return nil
		},
	})

	return apps
}

func newBlockCmd(opts *rootOptions, use string, blocked bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <package>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a restricted app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			app, err := c.SetBlocked(cmd.Context(), args[0], blocked)
			if err != nil {
				return err
			}
			printApp(cmd.OutOrStdout(), app)
			return nil
		},
	}
}

func printApp(w io.Writer, app *client.App) {
	limit := "none"
	if app.DailyLimitMinutes != nil {
		limit = (time.Duration(*app.DailyLimitMinutes) * time.Minute).String()
	}
	used := time.Duration(app.UsageTodaySec) * time.Second
	_, _ = fmt.Fprintf(w, "%s\t%s\tblocked=%t\tlimit=%s\tused=%s",
		app.PackageName, app.DisplayName, app.Blocked, limit, used)
	if app.ExtraTimeSec > 0 {
		_, _ = fmt.Fprintf(w, "\textra=%s", time.Duration(app.ExtraTimeSec)*time.Second)
	}
	if app.WarningSent {
		_, _ = fmt.Fprint(w, "\tlimit reached")
	}
	_, _ = fmt.Fprintln(w)
}

func newCompleteCmd(opts *rootOptions) *cobra.Command {
	var req client.ActivityRequest
	var callDuration time.Duration
	var contentID int64

	cmd := &cobra.Command{
		Use:   "complete <kind>",
		Short: "Report a completed activity",
		Long: "Report a completed activity and receive its reward.\n\n" +
			"Kinds: push_ups, squats (--reps), reading_app, reading_user (--minutes, --quiz-correct, --quiz-total),\n" +
			"speed_dial_call (--duration), arcade_game (--points), trace_drawing (--deviation).",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Kind = args[0]
			req.DurationSeconds = int(callDuration.Seconds())
			if cmd.Flags().Changed("content-id") {
				req.ContentID = &contentID
			}

			c, err := newClient(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			completion, err := c.Complete(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "earned %d points, %d unlock minutes\n", completion.Points, completion.UnlockMinutes)
			if completion.Badge != "" {
				_, _ = fmt.Fprintf(out, "badge: %s\n", completion.Badge)
			}
			if s := completion.Session; s != nil {
				_, _ = fmt.Fprintf(out, "unlocked until %s\n", s.EndAt)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&req.Reps, "reps", 0, "repetitions (push_ups, squats)")
	cmd.Flags().IntVar(&req.Minutes, "minutes", 0, "minutes read (reading_*)")
	cmd.Flags().Int64Var(&contentID, "content-id", 0, "reading content id")
	cmd.Flags().StringVar(&req.Title, "title", "", "reading or game title")
	cmd.Flags().StringVar(&req.Category, "category", "", "reading category completed")
	cmd.Flags().IntVar(&req.QuizCorrect, "quiz-correct", 0, "quiz answers correct")
	cmd.Flags().IntVar(&req.QuizTotal, "quiz-total", 0, "quiz questions")
	cmd.Flags().DurationVar(&callDuration, "duration", 0, "call duration (speed_dial_call)")
	cmd.Flags().StringVar(&req.Contact, "contact", "", "speed-dial contact")
	cmd.Flags().IntVar(&req.Points, "points", 0, "points awarded by the game (arcade_game)")
	cmd.Flags().Float64Var(&req.AverageDeviation, "deviation", 0, "average deviation in pixels (trace_drawing)")
	return cmd
}

func newSpendCmd(opts *rootOptions) *cobra.Command {
	var points int
	var minutes int

	cmd := &cobra.Command{
		Use:   "spend --points <n> --minutes <m>",
		Short: "Redeem points for unlock time",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if points <= 0 || minutes <= 0 {
				return fmt.Errorf("--points and --minutes must be positive")
			}
			c, err := newClient(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			result, err := c.Spend(cmd.Context(), points, minutes)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "spent %d points\n", result.Spent)
			if s := result.Session; s != nil {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "unlocked until %s\n", s.EndAt)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&points, "points", 0, "points to spend")
	cmd.Flags().IntVar(&minutes, "minutes", 0, "unlock minutes to buy")
	return cmd
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int
	history := &cobra.Command{Use: "history", Short: "Show the activity ledger and unlock sessions"}
	history.PersistentFlags().IntVar(&limit, "limit", 20, "entries to show")

	history.AddCommand(&cobra.Command{
		Use:   "activities",
		Short: "List activities and spends, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			activities, err := c.ListActivities(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, a := range activities {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%+d pts\t%d min\t%s\n",
					a.ID, a.CompletedAt, a.Kind, a.Points, a.UnlockMinutes, a.Title)
			}
			return nil
		},
	})

	history.AddCommand(&cobra.Command{
		Use:   "sessions",
		Short: "List unlock sessions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			sessions, err := c.ListSessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, s := range sessions {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\tactive=%t\n", s.ID, s.StartAt, s.EndAt, s.Covered)
			}
			return nil
		},
	})
	return history
}

func newEventCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "event <app_changed|screen_off|user_present> [package]",
		Short: "Send a platform event to the monitor",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pkg := ""
			if len(args) == 2 {
				pkg = args[1]
			}
			c, err := newClient(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			return c.PublishEvent(ctx, args[0], pkg)
		},
	}
}
