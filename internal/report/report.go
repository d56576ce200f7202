// Package report forwards request failures to error tracking.
package report

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// Modes accepted by NewReporter.
const (
	ModeDev  = "dev"
	ModeProd = "prod"
)

// Reporter receives every error returned to an editor client.
type Reporter interface {
	Report(ctx context.Context, err error, attrs ...slog.Attr)
}

// NewReporter returns the reporter for mode. Only prod reports; dev and
// unknown modes discard.
func NewReporter(mode string, logger *slog.Logger) Reporter {
	if strings.EqualFold(strings.TrimSpace(mode), ModeProd) {
		if logger == nil {
			logger = slog.Default()
		}
		return &logReporter{log: logger}
	}
	return Discard{}
}

// Discard drops every report.
type Discard struct{}

func (Discard) Report(context.Context, error, ...slog.Attr) {}

type logReporter struct {
	log *slog.Logger
}

func (r *logReporter) Report(ctx context.Context, err error, attrs ...slog.Attr) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	all := append([]slog.Attr{
		slog.Bool("report", true),
		slog.String("error", err.Error()),
	}, attrs...)
	r.log.LogAttrs(ctx, slog.LevelError, "request failed", all...)
}
