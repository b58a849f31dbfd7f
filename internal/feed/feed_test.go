package feed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gustycube/abusech-cli/internal/httpclient"
	"github.com/gustycube/abusech-cli/internal/metrics"
	"github.com/gustycube/abusech-cli/internal/types"
)

const urlhausBody = `{
	"query_status": "ok",
	"firstseen": "2019-01-19 01:33:26 UTC",
	"lastseen": "2024-06-15 00:00:00 UTC",
	"url_count": "1",
	"urls": [{
		"url_id": "42", "url": "http://bad.example/payload", "url_status": "online",
		"dateadded": "2024-06-15 00:00:00 UTC", "reporter": "abuse_ch", "threat": "malware_download",
		"tags": ["emotet", "doc"], "urlhaus_reference": "https://urlhaus.abuse.ch/url/42/"
	}]
}`

const threatfoxBody = `{
	"query_status": "ok",
	"data": [{
		"id": "7", "ioc": "1.2.3.4:8080", "threat_type": "botnet_cc", "threat_type_desc": "C2",
		"ioc_type": "ip:port", "ioc_type_desc": "ip and port", "malware": "win.emotet",
		"malware_printable": "Emotet", "malware_alias": null, "malware_malpedia": "https://malpedia/emotet",
		"confidence_level": 100, "first_seen": "2024-06-15 08:00:00 UTC", "reporter": "abuse_ch",
		"tags": ["emotet"]
	}]
}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return NewClient(httpclient.New(2*time.Second), Options{
		URLHausEndpoint:   server.URL + "/v1/tag/",
		ThreatFoxEndpoint: server.URL + "/api/v1/",
		AuthKey:           "secret",
		UserAgent:         "abusech-cli/test",
	}, nil)
}

func TestParseKind(t *testing.T) {
	tests := map[string]Kind{
		"urlhaus":       KindURL,
		"":              KindURL,
		"threatfox":     KindIOC,
		"my-threatfox":  KindIOC,
		"ThreatFox":     KindURL,
		"something-new": KindURL,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseKind(in), "ParseKind(%q)", in)
	}
}

func TestFetchURLs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/tag/", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("Auth-Key"))
		assert.Equal(t, "abusech-cli/test", r.Header.Get("User-Agent"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "emotet", r.PostForm.Get("tag"))
		assert.Len(t, r.PostForm, 1)
		w.Write([]byte(urlhausBody))
	})

	resp, err := c.FetchURLs(context.Background(), "emotet")
	require.NoError(t, err)
	require.Len(t, resp.URLs, 1)
	assert.Equal(t, "42", resp.URLs[0].ID)
	assert.Equal(t, []string{"emotet", "doc"}, resp.URLs[0].Tags)
	assert.Equal(t, "1", resp.URLCount)
}

func TestFetchIOCs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		var got map[string]string
		assert.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, map[string]string{"query": "taginfo", "tag": "Cobalt Strike", "limit": "1000"}, got)
		w.Write([]byte(threatfoxBody))
	})

	resp, err := c.FetchIOCs(context.Background(), "Cobalt Strike")
	require.NoError(t, err)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, 100, resp.Data[0].ConfidenceLevel)
	assert.Equal(t, "2024-06-15 08:00:00 UTC", resp.Data[0].FirstSeen.String())
}

func TestFetch_StatusIsTransportError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})

	before := testutil.ToFloat64(metrics.FetchTotal.WithLabelValues("urlhaus", "transport_error"))
	_, err := c.FetchURLs(context.Background(), "emotet")

	var te *TransportError
	require.True(t, errors.As(err, &te), "got %T: %v", err, err)
	assert.Equal(t, http.StatusUnauthorized, httpclient.GetHTTPStatusCode(err))
	assert.Contains(t, err.Error(), "urlhaus")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.FetchTotal.WithLabelValues("urlhaus", "transport_error")))
}

func TestFetch_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL
	server.Close()

	c := NewClient(httpclient.New(time.Second), Options{ThreatFoxEndpoint: endpoint}, nil)
	_, err := c.FetchIOCs(context.Background(), "emotet")

	var te *TransportError
	require.True(t, errors.As(err, &te), "got %T: %v", err, err)
	assert.Contains(t, err.Error(), "failed to get threatfox api response")
}

func TestFetch_DecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status string
		field  string
	}{
		{name: "not json", body: "<html>oops</html>"},
		{name: "bad timestamp", body: `{"query_status":"ok","data":[{"id":"1","first_seen":"soon"}]}`},
		{name: "no result", body: `{"query_status":"no_result","data":"Your search did not yield any results"}`, status: "no_result"},
		{name: "illegal tag", body: `{"query_status":"illegal_tag","data":[]}`, status: "illegal_tag"},
		{name: "missing first_seen", body: `{"query_status":"ok","data":[{"id":"1","ioc":"1.2.3.4:80"}]}`, field: "data[0].first_seen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})
			_, err := c.FetchIOCs(context.Background(), "x")

			var de *DecodeError
			require.True(t, errors.As(err, &de), "got %T: %v", err, err)

			if tt.status != "" {
				var qse *types.QueryStatusError
				require.True(t, errors.As(err, &qse), "got %v", err)
				assert.Equal(t, tt.status, qse.Status)
			}
			if tt.field != "" {
				var mfe *types.MissingFieldError
				require.True(t, errors.As(err, &mfe), "got %v", err)
				assert.Equal(t, tt.field, mfe.Field)
			}
		})
	}
}

func TestFetchURLs_NoResultNamesStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"query_status":"no_results","urls":"none"}`))
	})
	_, err := c.FetchURLs(context.Background(), "nothing")

	var qse *types.QueryStatusError
	require.True(t, errors.As(err, &qse), "got %v", err)
	assert.Equal(t, "no_results", qse.Status)
	assert.Contains(t, err.Error(), "no_results")
}

func TestFetch_QueryStatusNamed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"query_status":"no_results"}`))
	})
	_, err := c.FetchURLs(context.Background(), "nothing")

	var qse *types.QueryStatusError
	require.True(t, errors.As(err, &qse))
	assert.Equal(t, "no_results", qse.Status)
}

func TestFetch_ContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(urlhausBody))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchURLs(ctx, "emotet")
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.ErrorIs(t, err, context.Canceled)
}
