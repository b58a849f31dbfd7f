package output

import "strings"

// Format represents the output format
type Format string

const (
	FormatJSON    Format = "json"
	FormatCSV     Format = "csv"
	FormatTable   Format = "table"
	FormatConsole Format = "console"
)

// ParseFormat maps the --format value case-insensitively. Unknown values,
// including the empty string, select console output.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON
	case "csv":
		return FormatCSV
	case "table":
		return FormatTable
	default:
		return FormatConsole
	}
}

// DefaultPath is the file written by file-backed formats, relative to the
// working directory. Stream formats return "".
func (f Format) DefaultPath() string {
	switch f {
	case FormatJSON:
		return "result.json"
	case FormatCSV:
		return "result.csv"
	default:
		return ""
	}
}

// ToFile reports whether the format writes a file rather than stdout.
func (f Format) ToFile() bool {
	return f.DefaultPath() != ""
}
