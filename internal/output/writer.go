package output

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"

	"go.opentelemetry.io/otel/attribute"

	"github.com/gustycube/abusech-cli/internal/metrics"
	"github.com/gustycube/abusech-cli/internal/telemetry"
)

// Record is a feed entry that can be rendered as a CSV or table row.
type Record interface {
	CSVHeader() []string
	CSVRecord() []string
}

// FileError reports a failure to create or write an output file.
type FileError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("unable to %s file %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// Sink selects where and how records are rendered.
type Sink struct {
	Format Format
	// Path overrides Format.DefaultPath for file formats.
	Path string
	// Stdout receives console and table output.
	Stdout io.Writer
}

// Result describes what a sink produced.
type Result struct {
	Format  Format
	Path    string
	Handle  string
	Records int
}

func (s Sink) path() string {
	if s.Path != "" {
		return s.Path
	}
	return s.Format.DefaultPath()
}

func (s Sink) stdout() io.Writer {
	if s.Stdout != nil {
		return s.Stdout
	}
	return os.Stdout
}

// Emit renders one feed's entries. JSON receives the complete decoded list;
// every other format consumes the filtered sequence once.
func Emit[T Record](ctx context.Context, s Sink, all []T, filtered iter.Seq[T]) (Result, error) {
	_, span := telemetry.Tracer().Start(ctx, "output.Emit")
	defer span.End()

	res := Result{Format: s.Format, Path: s.path()}
	var err error
	switch s.Format {
	case FormatJSON:
		res.Handle, res.Records, err = WriteJSONFile(res.Path, all)
	case FormatCSV:
		res.Records, err = WriteCSVFile(res.Path, filtered)
	case FormatTable:
		res.Records, err = WriteTable(s.stdout(), filtered)
	default:
		res.Format = FormatConsole
		res.Records, err = WriteConsole(s.stdout(), filtered)
	}
	span.SetAttributes(attribute.String("format", string(res.Format)), attribute.Int("records", res.Records))
	if err != nil {
		telemetry.Fail(span, "write", err)
		return res, err
	}
	metrics.RecordsWritten.WithLabelValues(string(res.Format)).Add(float64(res.Records))
	return res, nil
}

// WriteJSONFile writes entries as indented JSON, replacing any existing file.
// The returned handle names the file and its descriptor.
func WriteJSONFile[T any](path string, entries []T) (string, int, error) {
	if entries == nil {
		entries = []T{}
	}
	content, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", 0, fmt.Errorf("encode json: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", 0, &FileError{Op: "create", Path: path, Err: err}
	}
	handle := fmt.Sprintf("%s (fd %d)", f.Name(), f.Fd())

	bw := bufio.NewWriter(f)
	if _, err := bw.Write(content); err != nil {
		f.Close()
		return handle, 0, &FileError{Op: "write", Path: path, Err: err}
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return handle, 0, &FileError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return handle, 0, &FileError{Op: "close", Path: path, Err: err}
	}
	return handle, len(entries), nil
}

// WriteCSVFile writes the header and one fully quoted row per record,
// replacing any existing file.
func WriteCSVFile[T Record](path string, records iter.Seq[T]) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, &FileError{Op: "create", Path: path, Err: err}
	}

	n, err := WriteCSV(f, records)
	if err != nil {
		f.Close()
		return n, &FileError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return n, &FileError{Op: "close", Path: path, Err: err}
	}
	return n, nil
}

// WriteCSV writes the header for T followed by one row per record.
func WriteCSV[T Record](w io.Writer, records iter.Seq[T]) (int, error) {
	var zero T
	qw := newQuotedWriter(w)
	if err := qw.Write(zero.CSVHeader()); err != nil {
		return 0, err
	}

	n := 0
	for r := range records {
		if err := qw.Write(r.CSVRecord()); err != nil {
			return n, err
		}
		n++
	}
	return n, qw.Flush()
}

// WriteConsole prints one debug line per record.
func WriteConsole[T any](w io.Writer, records iter.Seq[T]) (int, error) {
	bw := bufio.NewWriter(w)
	n := 0
	for r := range records {
		if _, err := fmt.Fprintf(bw, "%+v\n", r); err != nil {
			return n, err
		}
		n++
	}
	return n, bw.Flush()
}

// WriteTable renders the records as an aligned table using the CSV columns.
func WriteTable[T Record](w io.Writer, records iter.Seq[T]) (int, error) {
	var zero T
	var rows [][]string
	for r := range records {
		rows = append(rows, r.CSVRecord())
	}

	table := newTable(w)
	table.Header(zero.CSVHeader())
	if err := table.Bulk(rows); err != nil {
		return 0, err
	}
	if err := table.Render(); err != nil {
		return 0, err
	}
	return len(rows), nil
}
