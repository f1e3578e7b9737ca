package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"oapmon/internal/batch"
	"oapmon/internal/config"
	"oapmon/internal/logger"
	"oapmon/internal/models"
	"oapmon/internal/notify"
	"oapmon/internal/rules"
	"oapmon/internal/runner"
	"oapmon/internal/source"
	"oapmon/internal/store"
)

// Set at build time via -ldflags
var (
	Version = "dev"
	Commit  = ""
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "oapmon",
		Short:         "Threshold-based polling and alerting for OAPM infrastructure",
		Long:          "oapmon runs one monitoring cycle per invocation and exits; scheduling comes from cron or an equivalent external timer.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "oapmon.yaml", "path to the configuration file")

	root.AddCommand(sessionsCmd(), urlsCmd(), connectorsCmd(), failuresCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "oapmon: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			commit := Commit
			if commit == "" {
				commit = "unknown"
			}
			fmt.Printf("oapmon %s (commit %s)\n", Version, commit)
		},
	}
}

func sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "Check Oracle session usage against configured thresholds",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, ctx, stop, err := setup()
			if err != nil {
				return err
			}
			defer stop()

			inst := cfg.Instances.Sessions
			if inst == nil {
				return fmt.Errorf("sessions: %w", config.ErrInstanceNotSet)
			}

			src, err := source.NewPrometheus("sessions", inst.PrometheusURL, []source.Query{
				{Name: "sessions", PromQL: inst.Query, Metric: inst.Metric},
			}, inst.Labels, cfg.FetchTimeout.Duration)
			if err != nil {
				return err
			}

			return execute(ctx, cfg, "sessions", src, inst.Rules, nil)
		},
	}
}

func urlsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "urls",
		Short: "Check batch URL health and report failures",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, ctx, stop, err := setup()
			if err != nil {
				return err
			}
			defer stop()

			inst := cfg.Instances.URLs
			if inst == nil {
				return fmt.Errorf("urls: %w", config.ErrInstanceNotSet)
			}

			scanner := &batch.Scanner{
				Fs:     afero.NewOsFs(),
				Root:   inst.BatchRoot,
				Prefix: inst.BatchPrefix,
			}
			urls, err := scanner.Scan()
			if err != nil {
				return fmt.Errorf("scan batches: %w", err)
			}
			log := logger.WithComponent("main")
			log.Info().
				Int("urls", len(urls)).
				Str("root", inst.BatchRoot).
				Msg("batch scan complete")

			src := &source.URLCheck{
				URLs:     urls,
				Timeout:  cfg.FetchTimeout.Duration,
				Workers:  cfg.Workers,
				Retries:  inst.Retries,
				RetryMin: inst.RetryMin.Duration,
				RetryMax: inst.RetryMax.Duration,
			}

			// Optional check-history store
			var onSamples func(context.Context, []models.Sample) error
			if inst.PostgresDSN != "" {
				db, err := store.Open(ctx, inst.PostgresDSN)
				if err != nil {
					return err
				}
				defer db.Close()
				onSamples = func(ctx context.Context, samples []models.Sample) error {
					records := make([]store.CheckRecord, 0, len(samples))
					for _, s := range samples {
						records = append(records, store.RecordFor(s))
					}
					return db.InsertChecks(ctx, records)
				}
			}

			return execute(ctx, cfg, "urls", src, inst.Rules, onSamples)
		},
	}
}

func failuresCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "failures",
		Short: "List URLs whose most recent check failed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, ctx, stop, err := setup()
			if err != nil {
				return err
			}
			defer stop()

			inst := cfg.Instances.URLs
			if inst == nil {
				return fmt.Errorf("urls: %w", config.ErrInstanceNotSet)
			}
			if inst.PostgresDSN == "" {
				return fmt.Errorf("urls: postgres_dsn is required for check history")
			}

			db, err := store.Open(ctx, inst.PostgresDSN)
			if err != nil {
				return err
			}
			defer db.Close()

			records, err := db.LatestFailures(ctx)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("no failing urls")
				return nil
			}
			for _, r := range records {
				fmt.Printf("%s\t%s\t%s\t%s\n", r.Client, r.Env, r.URL, r.Status)
			}
			return nil
		},
	}
}

func connectorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connectors",
		Short: "Track Debezium connector lag and error metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, ctx, stop, err := setup()
			if err != nil {
				return err
			}
			defer stop()

			inst := cfg.Instances.Connectors
			if inst == nil {
				return fmt.Errorf("connectors: %w", config.ErrInstanceNotSet)
			}

			queries := make([]source.Query, 0, len(inst.Queries))
			for _, q := range inst.Queries {
				queries = append(queries, source.Query{Name: q.Name, PromQL: q.Query, Metric: q.Metric})
			}
			src, err := source.NewPrometheus("connectors", inst.PrometheusURL, queries, inst.Labels, cfg.FetchTimeout.Duration)
			if err != nil {
				return err
			}

			return execute(ctx, cfg, "connectors", src, inst.Rules, nil)
		},
	}
}

// setup loads configuration, initializes logging and installs signal
// handling. Config errors abort before any fetch.
func setup() (*config.Config, context.Context, context.CancelFunc, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return cfg, ctx, stop, nil
}

// execute wires the shared notifier stack around the instance source
// and runs one cycle
func execute(ctx context.Context, cfg *config.Config, name string, src source.Source, ruleList []rules.Rule, onSamples func(context.Context, []models.Sample) error) error {
	set, err := rules.NewSet(ruleList)
	if err != nil {
		return fmt.Errorf("%s rules: %w", name, err)
	}

	email := &notify.Email{
		Host:             cfg.Notify.SMTPHost,
		Port:             cfg.Notify.SMTPPort,
		Username:         cfg.Notify.SMTPUser,
		Password:         cfg.Notify.SMTPPass,
		Sender:           cfg.Notify.Sender,
		Recipients:       cfg.Notify.Recipients,
		SuppressAllClear: cfg.Notify.SuppressAllClearEnabled(),
	}

	var publisher *notify.AlertPublisher
	if len(cfg.Notify.KafkaBrokers) > 0 {
		publisher, err = notify.NewAlertPublisher(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic)
		if err != nil {
			return err
		}
		defer publisher.Close()
	}

	run := runner.New(runner.Instance{
		Name:      name,
		Source:    src,
		Rules:     set,
		Notifier:  email,
		Publisher: publisher,
		OnSamples: onSamples,
	})

	_, err = run.Execute(ctx)
	return err
}
