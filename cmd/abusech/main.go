package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gustycube/abusech-cli/internal/app"
	"github.com/gustycube/abusech-cli/internal/config"
	"github.com/gustycube/abusech-cli/internal/logging"
	"github.com/gustycube/abusech-cli/internal/telemetry"
	"github.com/gustycube/abusech-cli/internal/ui"
)

var version = "1.0.0"

type options struct {
	configFile string
	verbose    bool

	api            string
	tag            string
	reporter       string
	excludeOnline  bool
	excludeOffline bool
	excludeIOC     string
	dateFrom       string
	dateTo         string
	format         string
	output         string
	authKey        string
	timeoutSec     int
	metricsFile    string
	otelEndpoint   string
	otelInsecure   bool
	otelService    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		ui.NewConsole(false).Error(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:   "abusech",
		Short: "Query abuse.ch URLhaus or ThreatFox by tag",
		Long: `abusech fetches every URLhaus URL or ThreatFox IOC carrying a tag, filters
the entries locally and writes them as JSON, CSV, a table or debug lines.

Example usage:
  abusech -t emotet --exclude-offline -f csv
  abusech --api threatfox -t "Cobalt Strike" --exclude-ioc hash -f json
  abusech -t qakbot --date-from 20240101 --date-to 20240131 -r abuse_ch`,
		Version:       fmt.Sprintf("%s (%s)", version, strings.TrimPrefix(runtime.Version(), "go")),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.configFile, "config", "", "path to config file (YAML or JSON)")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "debug logging")

	f.StringVarP(&o.api, "api", "a", "urlhaus", "API endpoint (urlhaus or threatfox)")
	f.BoolVar(&o.excludeOnline, "exclude-online", false, "exclude url_status online (urlhaus)")
	f.BoolVar(&o.excludeOffline, "exclude-offline", false, "exclude url_status offline (urlhaus)")
	f.StringVar(&o.excludeIOC, "exclude-ioc", "hash", "exclude ioc types containing this text (threatfox)")
	f.StringVarP(&o.reporter, "reporter", "r", "", "filter by reporter (partial match)")
	f.StringVarP(&o.tag, "tag", "t", "emotet", "tag to query")
	f.StringVar(&o.dateFrom, "date-from", "", "filter by date from (YYYYMMDD, default today UTC)")
	f.StringVar(&o.dateTo, "date-to", "", "filter by date to (YYYYMMDD, default today UTC)")
	f.StringVarP(&o.format, "format", "f", "", "output format (json, csv, table; anything else prints debug lines)")
	f.StringVarP(&o.output, "output", "o", "", "output file for json/csv (default result.json / result.csv)")

	f.StringVar(&o.authKey, "auth-key", "", "abuse.ch Auth-Key (or ABUSECH_AUTH_KEY)")
	f.IntVar(&o.timeoutSec, "timeout-sec", 30, "request timeout in seconds")
	f.StringVar(&o.metricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")
	f.StringVar(&o.otelEndpoint, "otel-endpoint", "", "OTLP HTTP endpoint (host:port)")
	f.BoolVar(&o.otelInsecure, "otel-insecure", false, "OTLP insecure (no TLS)")
	f.StringVar(&o.otelService, "otel-service", "", "OTEL service.name")

	return cmd
}

// setFlags returns the flags the operator set, keyed by their config name.
func setFlags(fs *pflag.FlagSet) map[string]interface{} {
	out := make(map[string]interface{})
	fs.Visit(func(fl *pflag.Flag) {
		switch fl.Name {
		case "config", "verbose", "help", "version":
			return
		}
		key := strings.ReplaceAll(fl.Name, "-", "_")
		switch fl.Value.Type() {
		case "bool":
			if v, err := strconv.ParseBool(fl.Value.String()); err == nil {
				out[key] = v
			}
		case "int":
			if v, err := strconv.Atoi(fl.Value.String()); err == nil {
				out[key] = v
			}
		default:
			out[key] = fl.Value.String()
		}
	})
	return out
}

func loadConfig(cmd *cobra.Command, o *options) (*config.Config, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	var cfg *config.Config
	if o.configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(o.configFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = &config.Config{}
		cfg.SetDefaults()
	}

	cfg.LoadFromEnv()
	cfg.MergeWithFlags(setFlags(cmd.Flags()))
	if o.verbose {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(cmd *cobra.Command, o *options) error {
	cfg, err := loadConfig(cmd, o)
	if err != nil {
		return err
	}

	log := logging.New(cfg.LogLevel)
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdown, err := telemetry.Init(ctx, telemetry.Options{
		Endpoint:       cfg.OTELEndpoint,
		Insecure:       cfg.OTELInsecure,
		ServiceName:    cfg.OTELService,
		ServiceVersion: version,
		RunID:          cfg.Run,
	})
	if err != nil {
		log.Warnw("otel init failed", "err", err)
	} else {
		defer shutdown(context.WithoutCancel(ctx))
	}

	if o.configFile != "" {
		log.Debugw("loaded config from file", "file", o.configFile)
	}

	runner := app.New(cfg, log, ui.NewConsole(true), app.WithStdout(cmd.OutOrStdout()))
	sum, runErr := runner.Run(ctx)
	if err := runner.WriteMetrics(); err != nil {
		log.Warnw("metrics export failed", "file", cfg.MetricsFile, "err", err)
	}
	if runErr != nil {
		log.Errorw("run failed", "err", runErr, "run", cfg.Run)
		return runErr
	}

	runner.Report(sum)
	return nil
}
