package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// progressReporter shows pipeline stage messages. On a terminal it drives a
// spinner; otherwise each message becomes a log line.
type progressReporter struct {
	bar    *progressbar.ProgressBar
	logger *slog.Logger
}

func newProgressReporter(w io.Writer, logger *slog.Logger) *progressReporter {
	r := &progressReporter{logger: logger}
	if isTerminal(w) {
		r.bar = progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetDescription("Starting..."),
			progressbar.OptionClearOnFinish(),
		)
	}
	return r
}

func (r *progressReporter) update(message string) {
	if r.bar == nil {
		r.logger.Info(message)
		return
	}
	r.bar.Describe(message)
	_ = r.bar.Add(1)
}

func (r *progressReporter) finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
