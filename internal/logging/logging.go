package logging

import (
	"strings"

	"go.uber.org/zap"
)

type Logger = zap.SugaredLogger

// New builds a production logger on stderr at the given level, falling back
// to info for an unknown level. stdout is reserved for records.
func New(level string) *Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(strings.ToLower(level)); err == nil {
		cfg.Level = lvl
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}
