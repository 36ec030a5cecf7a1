package federation

import (
	"errors"
	"io"

	"github.com/charmbracelet/log"
)

// Diagnostics receives the records of dropped payloads and entities.
// *log.Logger from charmbracelet/log satisfies it.
type Diagnostics interface {
	Warn(msg interface{}, keyvals ...interface{})
	Error(msg interface{}, keyvals ...interface{})
}

func discardDiagnostics() Diagnostics {
	return log.New(io.Discard)
}

// NewLogger returns the diagnostics logger used by the host, prefixed
// like the rest of its output.
func NewLogger(w io.Writer, level log.Level) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{
		Prefix:          "Federation",
		ReportTimestamp: true,
		Level:           level,
	})
	return logger
}

// report logs a dropped candidate, authentication failures as warnings and
// everything else as errors.
func report(d Diagnostics, msg string, err error, keyvals ...interface{}) {
	keyvals = append(keyvals, "err", err)
	if errors.Is(err, ErrAuthentication) {
		d.Warn(msg, keyvals...)
		return
	}
	d.Error(msg, keyvals...)
}
