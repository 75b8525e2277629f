package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"bgmrules/internal/config"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var taskPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scrape the season listing, resolve every work, and write download rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(taskPath) == "" {
				return fmt.Errorf("--task must not be empty")
			}
			task, err := config.LoadTask(taskPath)
			if err != nil {
				return err
			}

			p, err := ctx.buildPipeline(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer p.Close()

			runCtx, stop := signal.NotifyContext(commandBaseContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report, err := p.manager.Run(runCtx, task)
			if err != nil {
				return err
			}
			return report.Render(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&taskPath, "task", "t", "tasks.yaml", "Task file (YAML) describing the listing table and download root")
	return cmd
}

func commandBaseContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
