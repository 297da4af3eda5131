package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"correctionwatch/internal/app"
	"correctionwatch/internal/storage"
)

const stopTimeout = 2 * time.Minute

func runCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the monitor until SIGINT or SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(c.manager())
			if err != nil {
				return err
			}

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigs)

			if err := a.Start(cmd.Context()); err != nil {
				_ = a.Stop(context.Background(), app.StopFatalError)
				return err
			}

			reason := app.StopUnknown
			select {
			case sig := <-sigs:
				reason = app.StopReasonFromSignal(sig)
			case <-a.Done():
				if a.Err() != nil {
					reason = app.StopFatalError
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			stopErr := a.Stop(ctx, reason)
			if err := a.Err(); err != nil {
				return err
			}
			return stopErr
		},
	}
}

func checkCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probe the site and read the record once, without notifying",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := c.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rep, err := app.Check(ctx, cfg, log)
			if err != nil {
				return err
			}
			printCheck(cmd.OutOrStdout(), rep)
			return nil
		},
	}
}

func printCheck(w io.Writer, rep app.CheckReport) {
	fmt.Fprintf(w, "url:    %s\n", rep.URL)
	if !rep.Probe.Up {
		fmt.Fprintf(w, "probe:  unreachable (%v)\n", rep.Probe.Err)
		return
	}
	fmt.Fprintf(w, "probe:  reachable in %s\n", rep.Probe.Latency.Round(time.Millisecond))
	if !rep.Snapshot.Found {
		fmt.Fprintf(w, "record: not read (%v)\n", rep.Snapshot.Error)
		return
	}
	fmt.Fprintf(w, "value:  %q (%s)\n", rep.Snapshot.RawValue, rep.Class)
	fmt.Fprintf(w, "result: %s\n", rep.Snapshot.OverallStatus)
}

func validateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, _, err := c.load(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", c.v.GetString("config"))
			return nil
		},
	}
}

func historyCmd(c *cli) *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the most recent journal entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := c.load()
			if err != nil {
				return err
			}
			entries, err := app.History(cmd.Context(), cfg, n, log)
			if errors.Is(err, storage.ErrDisabled) {
				return errors.New("journal is disabled; set storage.driver in the config")
			}
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(w, "no events recorded")
				return nil
			}
			for _, e := range entries {
				delivered := "delivered"
				if !e.Delivered {
					delivered = "failed"
				}
				fmt.Fprintf(w, "%s  %-10s %-8s %-9s attempts=%d", e.At.Format(time.RFC3339), e.Kind, e.Value, delivered, e.Attempts)
				if e.Detail != "" {
					fmt.Fprintf(w, "  %s", e.Detail)
				}
				if e.Error != "" {
					fmt.Fprintf(w, "  error=%q", e.Error)
				}
				fmt.Fprintln(w)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "limit", "n", 20, "number of entries")
	return cmd
}

func testNotifyCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test message to the configured chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := c.load()
			if err != nil {
				return err
			}
			d, err := app.SendTest(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			if !d.OK() {
				return fmt.Errorf("test message not delivered: %s", d)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent (%d attempt(s))\n", d.Attempts)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "correctionwatch", version)
		},
	}
}
