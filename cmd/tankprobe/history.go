package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"tankprobe/internal/metrics"
	"tankprobe/internal/report"
	"tankprobe/internal/storage"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		file string
		last bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Summarise recorded probe results per endpoint",
		Long: "Summarise recorded probe results per endpoint, or with --last show " +
			"the full report of the newest recorded probe.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.HistoryFile
			}
			if file == "" {
				return errors.New("no history file: pass --file or set history_file in the config")
			}

			store, err := storage.NewResultStorage(file, 0)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}

			out := cmd.OutOrStdout()
			if last {
				return printLatest(out, store, cfg.PreviewBytes, opts.jsonOutput)
			}

			summaries := metrics.ComputeEndpointSummary(store.History())
			if opts.jsonOutput {
				if summaries == nil {
					summaries = []metrics.EndpointSummary{}
				}
				data, err := json.MarshalIndent(summaries, "", "  ")
				if err != nil {
					return fmt.Errorf("encode summary: %w", err)
				}
				_, err = fmt.Fprintln(out, string(data))
				return err
			}
			report.Summary(out, summaries)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "history file written by --record")
	cmd.Flags().BoolVar(&last, "last", false, "show the newest recorded probe instead of the summary")
	return cmd
}

func printLatest(w io.Writer, store *storage.ResultStorage, previewBytes int, asJSON bool) error {
	rec, ok := store.Latest()
	if !ok {
		if asJSON {
			_, err := fmt.Fprintln(w, "null")
			return err
		}
		_, err := fmt.Fprintln(w, "No recorded probes.")
		return err
	}
	if asJSON {
		return report.JSON(w, rec, previewBytes)
	}
	if _, err := fmt.Fprintf(w, "Recorded at %s (run %s)\n\n", rec.StartedAt.UTC().Format(time.RFC3339), rec.Result.RunID); err != nil {
		return err
	}
	return report.Console(w, rec.Endpoint, rec.Result, previewBytes)
}
