// Package app wires one query run: fetch, filter, render.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/gustycube/abusech-cli/internal/config"
	"github.com/gustycube/abusech-cli/internal/feed"
	"github.com/gustycube/abusech-cli/internal/filter"
	"github.com/gustycube/abusech-cli/internal/httpclient"
	"github.com/gustycube/abusech-cli/internal/logging"
	"github.com/gustycube/abusech-cli/internal/metrics"
	"github.com/gustycube/abusech-cli/internal/output"
	"github.com/gustycube/abusech-cli/internal/telemetry"
	"github.com/gustycube/abusech-cli/internal/ui"
)

// Summary describes a completed run.
type Summary struct {
	Feed    feed.Kind
	Decoded int
	output.Result
}

type Runner struct {
	cfg     *config.Config
	feed    *feed.Client
	console *ui.Console
	log     *logging.Logger
	stdout  io.Writer
	now     func() time.Time
}

// Option customises a Runner.
type Option func(*Runner)

// WithStdout redirects console and table records.
func WithStdout(w io.Writer) Option {
	return func(r *Runner) { r.stdout = w }
}

// WithClock replaces the clock used for default date bounds.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func New(cfg *config.Config, log *logging.Logger, console *ui.Console, opts ...Option) *Runner {
	hc := httpclient.New(time.Duration(cfg.TimeoutSec) * time.Second)
	r := &Runner{
		cfg: cfg,
		feed: feed.NewClient(hc, feed.Options{
			URLHausEndpoint:   cfg.URLHausEndpoint,
			ThreatFoxEndpoint: cfg.ThreatFoxEndpoint,
			AuthKey:           cfg.AuthKey,
			UserAgent:         cfg.UA,
		}, log),
		console: console,
		log:     log,
		stdout:  os.Stdout,
		now:     time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run performs the single feed query and renders the result.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "app.Run")
	defer span.End()
	span.SetAttributes(telemetry.RunIDKey.String(r.cfg.Run))

	kind := feed.ParseKind(r.cfg.API)
	dates := filter.NewDateRange(r.cfg.DateFrom, r.cfg.DateTo, r.now().UTC())
	for _, bad := range dates.Invalid {
		r.log.Warnw("date bound is not YYYYMMDD, using current time", "value", bad)
	}
	sink := output.Sink{
		Format: output.ParseFormat(r.cfg.Format),
		Path:   r.cfg.Output,
		Stdout: r.stdout,
	}
	span.SetAttributes(
		attribute.String("feed", kind.String()),
		attribute.String("tag", r.cfg.Tag),
		attribute.String("format", string(sink.Format)),
	)
	r.log.Debugw("query",
		"feed", kind.String(),
		"tag", r.cfg.Tag,
		"reporter", r.cfg.Reporter,
		"from", dates.From,
		"to", dates.To,
		"format", sink.Format,
		"run", r.cfg.Run,
	)

	sum := Summary{Feed: kind}
	var err error
	r.console.StartSpinner(fmt.Sprintf("querying %s for tag %q", kind, r.cfg.Tag))
	switch kind {
	case feed.KindIOC:
		sum.Decoded, sum.Result, err = r.runIOC(ctx, sink, dates)
	default:
		sum.Decoded, sum.Result, err = r.runURL(ctx, sink, dates)
	}
	r.console.StopSpinner()
	if err != nil {
		telemetry.Fail(span, "run", err)
		return sum, err
	}

	metrics.EntriesTotal.WithLabelValues(kind.String(), "emitted").Add(float64(sum.Records))
	r.log.Infow("run complete",
		"feed", kind.String(),
		"decoded", sum.Decoded,
		"records", sum.Records,
		"format", sum.Format,
		"run", r.cfg.Run,
	)
	return sum, nil
}

func (r *Runner) runURL(ctx context.Context, sink output.Sink, dates filter.DateRange) (int, output.Result, error) {
	resp, err := r.feed.FetchURLs(ctx, r.cfg.Tag)
	if err != nil {
		return 0, output.Result{}, err
	}
	r.console.StopSpinner()

	opts := filter.URLOptions{
		ExcludeOnline:  r.cfg.ExcludeOnline,
		ExcludeOffline: r.cfg.ExcludeOffline,
		Reporter:       r.cfg.Reporter,
		Dates:          dates,
	}
	res, err := output.Emit(ctx, sink, resp.URLs, filter.Filter(resp.URLs, opts.Match))
	return len(resp.URLs), res, err
}

func (r *Runner) runIOC(ctx context.Context, sink output.Sink, dates filter.DateRange) (int, output.Result, error) {
	resp, err := r.feed.FetchIOCs(ctx, r.cfg.Tag)
	if err != nil {
		return 0, output.Result{}, err
	}
	r.console.StopSpinner()

	opts := filter.IOCOptions{
		Reporter:   r.cfg.Reporter,
		ExcludeIOC: r.cfg.ExcludeIOC,
		Dates:      dates,
	}
	res, err := output.Emit(ctx, sink, resp.Data, filter.Filter(resp.Data, opts.Match))
	return len(resp.Data), res, err
}

// Report prints the one-line outcome. File formats report on stdout; stream
// formats keep stdout for records and report on stderr.
func (r *Runner) Report(s Summary) {
	switch s.Format {
	case output.FormatJSON:
		r.console.Success("outputted. [%s].", s.Handle)
	case output.FormatCSV:
		r.console.Success("outputted. [%s].", s.Path)
	default:
		r.console.Info("%d of %d %s entries matched.", s.Records, s.Decoded, s.Feed)
	}
}

// WriteMetrics exports the run's counters when a metrics file is configured.
func (r *Runner) WriteMetrics() error {
	if r.cfg.MetricsFile == "" {
		return nil
	}
	if err := metrics.WriteTextfile(r.cfg.MetricsFile); err != nil {
		return fmt.Errorf("write metrics file: %w", err)
	}
	return nil
}
