package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"bgmrules/internal/workflow"
)

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var inputPath string
	var outputPath string

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a saved list of cleaned works against Bangumi",
		Long: "Resolve reads a JSON array of works (original_title, cleaned_title, air_date, keywords),\n" +
			"matches each one to a Bangumi subject, and writes the resolution records.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(inputPath) == "" {
				return fmt.Errorf("--input is required")
			}
			works, err := workflow.LoadWorks(inputPath)
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

			report, _, err := p.manager.Resolve(runCtx, works, outputPath)
			if err != nil {
				return err
			}
			return report.Render(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "JSON file holding the works to resolve")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Where to write results (defaults to the configured results path)")
	return cmd
}
