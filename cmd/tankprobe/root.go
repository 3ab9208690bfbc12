package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tankprobe/internal/config"
	"tankprobe/internal/logger"
	"tankprobe/internal/models"
	"tankprobe/internal/probe"
	"tankprobe/internal/report"
	"tankprobe/internal/storage"
)

var (
	version = "dev"
	commit  = "unknown"
)

// errProbeFailed signals a non-zero exit in strict mode; it carries no message.
var errProbeFailed = errors.New("probe failed")

type rootOptions struct {
	configPath string
	logLevel   string
	jsonOutput bool
	strict     bool
	record     string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "tankprobe [host]",
		Short: "probe a game server port with a login-style handshake",
		Long: "Connect to host on the configured port, send a key|value handshake, " +
			"wait for any reply, and report how far the exchange got.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd, args, opts)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "tankprobe.yaml", "path to configuration file (YAML)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print the result as JSON instead of the console report")

	cmd.Flags().BoolVar(&opts.strict, "strict", false, "exit with status 1 when any probe stage fails")
	cmd.Flags().StringVar(&opts.record, "record", "", "append the result to this history file")

	cmd.AddCommand(newHistoryCmd(opts))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", path.Base(os.Args[0]), version, commit)
		},
	})
	return cmd
}

// loadConfig reads the config file and initialises logging on stderr.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	level := cfg.LogLevel
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	logger.Init(level, cmd.ErrOrStderr())
	return cfg, nil
}

func runProbe(cmd *cobra.Command, args []string, opts *rootOptions) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Host = strings.TrimSpace(args[0])
	}
	// A malformed host is recorded by the probe as a connect failure.
	ep := cfg.Endpoint()

	out := cmd.OutOrStdout()
	if !opts.jsonOutput {
		fmt.Fprintf(out, "Server connection test\nTarget: %s\n\n", ep.Address())
	}

	started := time.Now().UTC()
	res := probe.Run(cmd.Context(), ep, probe.Options{
		ConnectTimeout: cfg.ConnectTimeout(),
		ReadTimeout:    cfg.ReadTimeout(),
		Payload:        cfg.Handshake.Payload(),
		BufferSize:     cfg.ReadBufferBytes,
	})
	rec := models.Record{Endpoint: ep, StartedAt: started, Result: res}

	if err := writeReport(out, rec, cfg.PreviewBytes, opts.jsonOutput); err != nil {
		return err
	}

	historyFile := cfg.HistoryFile
	if opts.record != "" {
		historyFile = opts.record
	}
	if historyFile != "" {
		if err := recordResult(historyFile, rec); err != nil {
			cli := logger.WithComponent("cli")
			cli.Error().Err(err).Str("file", historyFile).Msg("record probe result")
		}
	}

	if opts.strict && res.Err() != nil {
		return errProbeFailed
	}
	return nil
}

func writeReport(w io.Writer, rec models.Record, previewBytes int, asJSON bool) error {
	if asJSON {
		return report.JSON(w, rec, previewBytes)
	}
	if err := report.Console(w, rec.Endpoint, rec.Result, previewBytes); err != nil {
		return err
	}
	return report.Tips(w)
}

func recordResult(path string, rec models.Record) error {
	store, err := storage.NewResultStorage(path, 0)
	if err != nil {
		return err
	}
	return store.Append(rec)
}
