package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// wireLayout is the timestamp layout used by both abuse.ch feeds.
	wireLayout = "2006-01-02 15:04:05"
	textLayout = wireLayout + " UTC"

	// StatusOK is the query_status value of a successful feed query.
	StatusOK = "ok"
)

// Timestamp is a feed timestamp in UTC. Only the first 19 characters of the
// wire text are significant; the feeds append a zone suffix that is ignored.
type Timestamp struct {
	time.Time
}

// ParseTimestamp parses feed timestamp text.
func ParseTimestamp(s string) (Timestamp, error) {
	if len(s) < len(wireLayout) {
		return Timestamp{}, fmt.Errorf("timestamp %q: too short", s)
	}
	t, err := time.ParseInLocation(wireLayout, s[:len(wireLayout)], time.UTC)
	if err != nil {
		return Timestamp{}, fmt.Errorf("timestamp %q: %w", s, err)
	}
	return Timestamp{Time: t}, nil
}

func (t Timestamp) String() string {
	return t.UTC().Format(textLayout)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(wireLayout))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	ts, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = ts
	return nil
}

// QueryStatusError reports an envelope whose query_status is not "ok".
type QueryStatusError struct {
	Status string
}

func (e *QueryStatusError) Error() string {
	return fmt.Sprintf("query status %q", e.Status)
}

// MissingFieldError reports a required timestamp absent from an ok envelope.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field %s", e.Field)
}

// Envelope holds just the query status so it can be checked before the
// payload, which the feeds replace with a message string on failure.
type Envelope struct {
	QueryStatus string `json:"query_status"`
}

// Check returns a *QueryStatusError unless the query succeeded.
func (e Envelope) Check() error {
	if e.QueryStatus != StatusOK {
		return &QueryStatusError{Status: e.QueryStatus}
	}
	return nil
}

var (
	URLHeader = []string{"url_id", "url", "url_status", "dateadded", "reporter", "threat", "tags"}
	IOCHeader = []string{
		"id", "ioc", "threat_type", "threat_type_desc", "ioc_type", "ioc_type_desc",
		"malware", "malware_printable", "malware_alias", "malware_malpedia",
		"confidence_level", "first_seen", "reporter", "tags",
	}
)

// URLEntry is one URLhaus record
type URLEntry struct {
	ID        string    `json:"url_id"`
	URL       string    `json:"url"`
	Status    string    `json:"url_status"`
	DateAdded Timestamp `json:"dateadded"`
	Reporter  string    `json:"reporter"`
	Threat    string    `json:"threat"`
	Tags      []string  `json:"tags"`
	Reference string    `json:"urlhaus_reference"`
}

func (e URLEntry) CSVHeader() []string { return URLHeader }

func (e URLEntry) CSVRecord() []string {
	return []string{
		e.ID,
		Defang(e.URL),
		e.Status,
		e.DateAdded.String(),
		e.Reporter,
		e.Threat,
		JoinTags(e.Tags),
	}
}

// URLResponse is the URLhaus tag query envelope
type URLResponse struct {
	QueryStatus string     `json:"query_status"`
	FirstSeen   Timestamp  `json:"firstseen"`
	LastSeen    Timestamp  `json:"lastseen"`
	URLCount    string     `json:"url_count"`
	URLs        []URLEntry `json:"urls"`
}

// Check returns a *QueryStatusError unless the query succeeded.
// Timestamps absent from the response are reported as *MissingFieldError.
func (r *URLResponse) Check() error {
	if err := (Envelope{QueryStatus: r.QueryStatus}).Check(); err != nil {
		return err
	}
	if r.FirstSeen.IsZero() {
		return &MissingFieldError{Field: "firstseen"}
	}
	if r.LastSeen.IsZero() {
		return &MissingFieldError{Field: "lastseen"}
	}
	for i, u := range r.URLs {
		if u.DateAdded.IsZero() {
			return &MissingFieldError{Field: fmt.Sprintf("urls[%d].dateadded", i)}
		}
	}
	return nil
}

// IOCEntry is one ThreatFox record
type IOCEntry struct {
	ID               string    `json:"id"`
	IOC              string    `json:"ioc"`
	ThreatType       string    `json:"threat_type"`
	ThreatTypeDesc   string    `json:"threat_type_desc"`
	IOCType          string    `json:"ioc_type"`
	IOCTypeDesc      string    `json:"ioc_type_desc"`
	Malware          string    `json:"malware"`
	MalwarePrintable string    `json:"malware_printable"`
	MalwareAlias     string    `json:"malware_alias"`
	MalwareMalpedia  string    `json:"malware_malpedia"`
	ConfidenceLevel  int       `json:"confidence_level"`
	FirstSeen        Timestamp `json:"first_seen"`
	Reporter         string    `json:"reporter"`
	Tags             []string  `json:"tags"`
}

func (e IOCEntry) CSVHeader() []string { return IOCHeader }

func (e IOCEntry) CSVRecord() []string {
	return []string{
		e.ID,
		Defang(e.IOC),
		e.ThreatType,
		e.ThreatTypeDesc,
		e.IOCType,
		e.IOCTypeDesc,
		e.Malware,
		e.MalwarePrintable,
		e.MalwareAlias,
		e.MalwareMalpedia,
		strconv.Itoa(e.ConfidenceLevel),
		e.FirstSeen.String(),
		e.Reporter,
		JoinTags(e.Tags),
	}
}

// IOCResponse is the ThreatFox taginfo envelope
type IOCResponse struct {
	QueryStatus string     `json:"query_status"`
	Data        []IOCEntry `json:"data"`
}

// Check returns a *QueryStatusError unless the query succeeded.
// Entries without first_seen are reported as *MissingFieldError.
func (r *IOCResponse) Check() error {
	if err := (Envelope{QueryStatus: r.QueryStatus}).Check(); err != nil {
		return err
	}
	for i, e := range r.Data {
		if e.FirstSeen.IsZero() {
			return &MissingFieldError{Field: fmt.Sprintf("data[%d].first_seen", i)}
		}
	}
	return nil
}

// Defang replaces every "http" with "hxxp".
func Defang(s string) string {
	return strings.ReplaceAll(s, "http", "hxxp")
}

// JoinTags joins a tag set with ':' in feed order.
func JoinTags(tags []string) string {
	return strings.Join(tags, ":")
}
