package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"bgmrules/internal/listing"
	"bgmrules/internal/workflow"
)

func newRulesCommand(ctx *commandContext) *cobra.Command {
	var inputPath string
	var season string
	var rootPath string

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Regenerate download rules from cached results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			input := strings.TrimSpace(inputPath)
			if input == "" {
				input = cfg.ResultsPath()
			}
			resolutions, err := workflow.LoadResults(input)
			if err != nil {
				return err
			}
			if strings.TrimSpace(season) == "" {
				season = listing.SeasonName("", time.Now())
			}

			manager, err := workflow.NewManager(cfg, workflow.Dependencies{Logger: logger})
			if err != nil {
				return err
			}
			report, err := manager.GenerateRules(commandBaseContext(cmd), resolutions, season, rootPath)
			if err != nil {
				return err
			}
			return report.Render(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "Results file (defaults to the configured results path)")
	cmd.Flags().StringVar(&season, "season", "", "Season directory name, e.g. 2025年10月新番 (defaults to the current quarter)")
	cmd.Flags().StringVar(&rootPath, "root", "", "Download root path (defaults to rules.root_path)")
	return cmd
}
