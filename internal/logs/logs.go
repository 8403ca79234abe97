package logs

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// ConsoleLogger builds the stderr logger and installs it as the slog default.
// Color is dropped automatically when stderr is not a terminal.
func ConsoleLogger(level slog.Level) *slog.Logger {
	w := os.Stderr

	logger := slog.New(
		tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
			NoColor:    !isatty.IsTerminal(w.Fd()),
		}),
	)
	slog.SetDefault(logger)
	return logger
}
