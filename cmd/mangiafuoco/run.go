package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/mangiafuoco/pkg/events"
	"github.com/go-go-golems/mangiafuoco/pkg/server"
)

func newRunCommand() *cobra.Command {
	var taskType string
	var timeoutMinutes int
	var quiet bool

	cmd := &cobra.Command{
		Use:   "run [task description]",
		Short: "Execute a single task and print its report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			description := args[0]
			for _, a := range args[1:] {
				description += " " + a
			}

			cfg, err := loadSettings()
			if err != nil {
				return err
			}
			rt, err := buildRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if timeoutMinutes > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMinutes)*time.Minute)
				defer cancel()
			}

			taskID := uuid.New().String()
			log.Info().Str("task_id", taskID).Str("type", taskType).Msg("starting task")

			var outcome *server.Outcome
			if !quiet && isatty.IsTerminal(os.Stderr.Fd()) {
				outcome, err = runWithTUI(ctx, rt, taskID, description, taskType)
			} else {
				var wg sync.WaitGroup
				if !quiet {
					ch, err := rt.bus.Subscribe(ctx, taskID)
					if err != nil {
						return err
					}
					printer := events.TaskPrinterFunc(os.Stderr)
					wg.Add(1)
					go func() {
						defer wg.Done()
						for e := range ch {
							if err := printer(e); err != nil {
								return
							}
						}
					}()
				}
				outcome, err = rt.orchestrator.ExecuteTask(ctx, taskID, description, taskType)
				stop()
				wg.Wait()
			}
			if err != nil {
				return err
			}

			printReport(outcome)
			return nil
		},
	}

	cmd.Flags().StringVar(&taskType, "type", server.TaskTypeResearch, "Task type (research or general)")
	cmd.Flags().IntVar(&timeoutMinutes, "timeout", 0, "Abort the task after this many minutes (0 = no limit)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress live event output")
	return cmd
}

func printReport(outcome *server.Outcome) {
	if isatty.IsTerminal(os.Stdout.Fd()) {
		if styled, err := glamour.Render(outcome.Report, "dark"); err == nil {
			fmt.Print(styled)
		} else {
			fmt.Println(outcome.Report)
		}
	} else {
		fmt.Println(outcome.Report)
	}
	if outcome.ReportPath != "" {
		fmt.Fprintln(os.Stderr, "Report saved to:", outcome.ReportPath)
	}
	if outcome.WorkspacePath != "" {
		fmt.Fprintln(os.Stderr, "Workspace:", outcome.WorkspacePath)
	}
}
