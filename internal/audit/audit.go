// Package audit is the dedicated security/configuration audit trail:
// a slog.Logger instance independent of general application logging,
// with its own rotation policy, recording only AuditEvents.
package audit

import (
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vitaliisemenov/hostagent/internal/config"
	"github.com/vitaliisemenov/hostagent/internal/types"
)

// Logger implements security.AuditSink and the config-reload audit
// hook the supervisor uses.
type Logger struct {
	slog *slog.Logger
}

// New builds an audit Logger from the logging config's audit_* block.
// A blank AuditFilename routes audit events to stdout, same as the
// general logger would, rather than discarding them.
func New(cfg config.LoggingConfig) *Logger {
	var writer io.Writer = os.Stdout
	if cfg.AuditFilename != "" {
		writer = &lumberjack.Logger{
			Filename:   cfg.AuditFilename,
			MaxSize:    cfg.AuditMaxSizeMB,
			MaxBackups: cfg.AuditMaxBackups,
			MaxAge:     cfg.AuditMaxAgeDays,
			Compress:   cfg.Compress,
		}
	}

	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: slog.LevelInfo})
	return &Logger{slog: slog.New(handler)}
}

// Audit records one AuditEvent, implementing security.AuditSink.
func (l *Logger) Audit(event types.AuditEvent) {
	l.slog.Info("audit",
		"timestamp", event.Timestamp,
		"actor", event.Actor,
		"action", event.Action,
		"subject", event.Subject,
		"allowed", event.Allowed,
		"reason", event.Reason,
	)
}

// ConfigReload records a configuration reload attempt as an
// AuditEvent, used by the supervisor's SIGHUP handler.
func (l *Logger) ConfigReload(source string, applied bool, reason string) {
	l.Audit(types.AuditEvent{
		Timestamp: time.Now().UTC(),
		Actor:     "cli",
		Action:    "config_reload",
		Subject:   source,
		Allowed:   applied,
		Reason:    reason,
	})
}
