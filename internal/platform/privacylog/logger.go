package privacylog

import (
	"io"
	"log/slog"
	"os"
)

// NewJSONLogger returns a JSON slog logger whose records pass through the
// sanitizing handler.
func NewJSONLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return slog.New(WrapHandler(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
}

func DefaultLogger() *slog.Logger {
	return NewJSONLogger(os.Stdout, slog.LevelInfo)
}
