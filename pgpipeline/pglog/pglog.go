// Package pglog provides the structured logging handlers pgpipeline.Conn
// uses for dispatch, drain, and cache diagnostics: a pretty-printed JSON
// handler for local development and a compact JSON handler for
// production, mirroring the dev/prod slog.Logger split a teacher HTTP
// service would use for request logging, retargeted at pipeline events
// (dispatch sql/name/binds_count, drain-loop stalls, cache evictions)
// instead of request_started/request_completed.
package pglog

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"time"
)

// PrettyJSONHandler pretty-prints JSON log records, for local development
// where a human is reading stdout directly.
type PrettyJSONHandler struct {
	*slog.JSONHandler
	writer io.Writer
}

func (h *PrettyJSONHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make(map[string]any)
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})
	attrs["time"] = r.Time.Format(time.RFC3339)
	attrs["level"] = r.Level.String()
	attrs["msg"] = r.Message

	prettyJSON, err := json.MarshalIndent(attrs, "", "  ")
	if err != nil {
		return err
	}
	_, err = h.writer.Write(append(prettyJSON, '\n'))
	return err
}

func newPrettyJSONHandler() *PrettyJSONHandler {
	return &PrettyJSONHandler{
		JSONHandler: slog.NewJSONHandler(os.Stdout, nil),
		writer:      os.Stdout,
	}
}

// Prod is a compact single-line JSON logger, suitable for log
// aggregation.
var Prod = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// Dev is a pretty-printed JSON logger, suitable for a local terminal.
var Dev = slog.New(newPrettyJSONHandler())

// For picks Dev or Prod based on env, the same switch a teacher cmd/
// entrypoint makes between local and deployed logging.
func For(env string) *slog.Logger {
	if env == "production" {
		return Prod
	}
	return Dev
}

// DispatchFields builds structured fields for a dispatch event: sql,
// binds_count, and prepared_name when it is non-empty. Conn's own
// dispatch event builds its fields itself and does not call this.
func DispatchFields(sql, preparedName string, bindsCount int) []any {
	fields := []any{"sql", sql, "binds_count", bindsCount}
	if preparedName != "" {
		fields = append(fields, "prepared_name", preparedName)
	}
	return fields
}
