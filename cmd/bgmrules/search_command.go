package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"bgmrules/internal/anime"
	"bgmrules/internal/titleclean"
)

const searchColumnWidth = 36

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var airDate string

	cmd := &cobra.Command{
		Use:   "search <keyword>",
		Short: "Query Bangumi for a keyword and list the candidates",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			var date *time.Time
			if strings.TrimSpace(airDate) != "" {
				parsed, err := anime.ParseDate(airDate)
				if err != nil {
					return fmt.Errorf("--air-date: expected YYYY-MM-DD: %w", err)
				}
				date = &parsed
			}

			client, cache, err := newCatalogClient(cfg, logger)
			if err != nil {
				return err
			}
			defer cache.Close()

			keyword := strings.Join(args, " ")
			candidates, err := client.Query(commandBaseContext(cmd), keyword, date)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(candidates) == 0 {
				fmt.Fprintf(out, "No Bangumi subjects found for %q\n", keyword)
				return nil
			}
			fmt.Fprint(out, renderCandidates(candidates))
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&airDate, "air-date", "", "Restrict results to subjects airing near this date (YYYY-MM-DD)")
	return cmd
}

func renderCandidates(candidates []anime.Candidate) string {
	rows := make([][]string, 0, len(candidates))
	for _, c := range candidates {
		rows = append(rows, []string{
			strconv.FormatInt(c.CatalogID, 10),
			titleclean.Truncate(c.PrimaryTitle, searchColumnWidth),
			titleclean.Truncate(c.LocalizedTitle, searchColumnWidth),
			c.AirDate,
			titleclean.Truncate(strings.Join(c.Aliases, " / "), searchColumnWidth),
		})
	}
	return renderTable(
		[]string{"ID", "Title", "Chinese", "Air date", "Aliases"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
	)
}
