// Package feed issues the single abuse.ch query of a run and decodes the
// response envelope.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/gustycube/abusech-cli/internal/httpclient"
	"github.com/gustycube/abusech-cli/internal/metrics"
	"github.com/gustycube/abusech-cli/internal/telemetry"
	"github.com/gustycube/abusech-cli/internal/types"
)

const (
	DefaultURLHausEndpoint   = "https://urlhaus-api.abuse.ch/v1/tag/"
	DefaultThreatFoxEndpoint = "https://threatfox-api.abuse.ch/api/v1/"

	// taginfoLimit is the ThreatFox page size; the API caps it at 1000.
	taginfoLimit = "1000"
)

// Kind selects one of the two feeds.
type Kind int

const (
	KindURL Kind = iota
	KindIOC
)

func (k Kind) String() string {
	switch k {
	case KindIOC:
		return "threatfox"
	default:
		return "urlhaus"
	}
}

// ParseKind maps the --api value to a feed. Anything mentioning threatfox is
// the IOC feed; everything else is URLhaus.
func ParseKind(api string) Kind {
	if strings.Contains(api, "threatfox") {
		return KindIOC
	}
	return KindURL
}

// TransportError means no usable response was obtained.
type TransportError struct {
	Feed Kind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to get %s api response: %v", e.Feed, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError means the body did not match the feed's envelope.
type DecodeError struct {
	Feed Kind
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s api response: %v", e.Feed, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type Options struct {
	URLHausEndpoint   string
	ThreatFoxEndpoint string
	AuthKey           string
	UserAgent         string
}

type Client struct {
	hc   *http.Client
	opts Options
	log  *zap.SugaredLogger
}

func NewClient(hc *http.Client, opts Options, log *zap.SugaredLogger) *Client {
	if hc == nil {
		hc = httpclient.Default()
	}
	if opts.URLHausEndpoint == "" {
		opts.URLHausEndpoint = DefaultURLHausEndpoint
	}
	if opts.ThreatFoxEndpoint == "" {
		opts.ThreatFoxEndpoint = DefaultThreatFoxEndpoint
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Client{hc: hc, opts: opts, log: log}
}

// FetchURLs runs the URLhaus tag query.
func (c *Client) FetchURLs(ctx context.Context, tag string) (*types.URLResponse, error) {
	form := url.Values{"tag": {tag}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.URLHausEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &TransportError{Feed: KindURL, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out types.URLResponse
	if err := c.do(ctx, KindURL, req, &out); err != nil {
		return nil, err
	}
	metrics.EntriesTotal.WithLabelValues(KindURL.String(), "decoded").Add(float64(len(out.URLs)))
	return &out, nil
}

type taginfoRequest struct {
	Query string `json:"query"`
	Tag   string `json:"tag"`
	Limit string `json:"limit"`
}

// FetchIOCs runs the ThreatFox taginfo query.
func (c *Client) FetchIOCs(ctx context.Context, tag string) (*types.IOCResponse, error) {
	body, err := json.Marshal(taginfoRequest{Query: "taginfo", Tag: tag, Limit: taginfoLimit})
	if err != nil {
		return nil, &TransportError{Feed: KindIOC, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.ThreatFoxEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Feed: KindIOC, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	var out types.IOCResponse
	if err := c.do(ctx, KindIOC, req, &out); err != nil {
		return nil, err
	}
	metrics.EntriesTotal.WithLabelValues(KindIOC.String(), "decoded").Add(float64(len(out.Data)))
	return &out, nil
}

// checker is implemented by the response envelopes.
type checker interface {
	Check() error
}

// do sends req once, rejects an envelope whose query did not succeed, then
// decodes the 2xx JSON body into out and checks its required fields.
func (c *Client) do(ctx context.Context, kind Kind, req *http.Request, out any) error {
	ctx, span := telemetry.Tracer().Start(ctx, "feed.Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("feed", kind.String()), attribute.String("http.url", req.URL.String()))
	req = req.WithContext(ctx)

	if c.opts.AuthKey != "" {
		req.Header.Set("Auth-Key", c.opts.AuthKey)
	}
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	metrics.FetchDuration.WithLabelValues(kind.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.Fail(span, "transport", err)
		return c.fail(kind, &TransportError{Feed: kind, Err: err})
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if err := httpclient.CheckStatus(resp); err != nil {
		telemetry.Fail(span, "status", err)
		return c.fail(kind, &TransportError{Feed: kind, Err: err})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		telemetry.Fail(span, "transport", err)
		return c.fail(kind, &TransportError{Feed: kind, Err: err})
	}

	// no_result and friends carry a string where the entry list would be
	var env types.Envelope
	if err := json.Unmarshal(body, &env); err == nil && env.QueryStatus != "" {
		if err := env.Check(); err != nil {
			telemetry.Fail(span, "query_status", err)
			return c.fail(kind, &DecodeError{Feed: kind, Err: err})
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		telemetry.Fail(span, "decode", err)
		return c.fail(kind, &DecodeError{Feed: kind, Err: err})
	}
	if ch, ok := out.(checker); ok {
		if err := ch.Check(); err != nil {
			telemetry.Fail(span, "check", err)
			return c.fail(kind, &DecodeError{Feed: kind, Err: err})
		}
	}

	metrics.FetchTotal.WithLabelValues(kind.String(), "ok").Inc()
	c.log.Debugw("feed response decoded", "feed", kind.String(), "status", resp.StatusCode, "elapsed", time.Since(start))
	return nil
}

func (c *Client) fail(kind Kind, err error) error {
	result := "decode_error"
	if _, ok := err.(*TransportError); ok {
		result = "transport_error"
	}
	metrics.FetchTotal.WithLabelValues(kind.String(), result).Inc()
	return err
}
