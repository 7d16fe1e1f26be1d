// Package security implements the agent's command and path allowlisting:
// the last line of defense before a dispatched Command touches the host.
package security

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vitaliisemenov/hostagent/internal/agenterr"
	"github.com/vitaliisemenov/hostagent/internal/types"
)

// Config is the allowlist and size-ceiling policy. The default allowed
// commands and paths intentionally mix POSIX and Windows entries so one
// config shape covers both platforms; prefix matching is literal, not
// canonicalized (see Validator doc comment).
type Config struct {
	AllowedCommands        map[string]struct{}
	AllowedPaths           []string
	MaxFileSize            int64
	EnableCommandAllowlist bool
	EnablePathRestriction  bool
}

// DefaultConfig returns the documented default allowlist.
func DefaultConfig() Config {
	return Config{
		AllowedCommands: map[string]struct{}{
			"ls":        {},
			"dir":       {},
			"ps":        {},
			"systemctl": {},
			"service":   {},
		},
		AllowedPaths:           []string{"/tmp", "/var/log", `C:\temp`, `C:\logs`},
		MaxFileSize:            100 * 1024 * 1024,
		EnableCommandAllowlist: true,
		EnablePathRestriction:  true,
	}
}

// AuditSink receives an AuditEvent for every accept/reject decision. The
// supervisor wires this to the dedicated audit logger (internal/audit).
type AuditSink interface {
	Audit(types.AuditEvent)
}

// Validator is the security allowlist gate consulted by the control-plane
// dispatch table before Execute, Deploy, and Configure commands run.
//
// The allowlist comparison is an exact string match: it does not
// normalize, resolve symlinks, or canonicalize paths. This is a known,
// documented limitation rather than an oversight — see the open question
// on canonicalization.
type Validator struct {
	mu     sync.RWMutex
	cfg    Config
	logger *slog.Logger
	audit  AuditSink
}

func New(cfg Config, logger *slog.Logger, audit AuditSink) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{cfg: cfg, logger: logger, audit: audit}
}

// UpdateConfig atomically swaps the allowlist/path-restriction policy,
// used by the supervisor's SIGHUP reload to hot-swap the allowed
// commands and paths without restarting the process.
func (v *Validator) UpdateConfig(cfg Config) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cfg = cfg
}

// ValidateCommand succeeds iff the program name (not its arguments) is a
// member of the allowlist, or the allowlist is disabled.
func (v *Validator) ValidateCommand(command string) error {
	v.mu.RLock()
	cfg := v.cfg
	v.mu.RUnlock()

	if !cfg.EnableCommandAllowlist {
		v.record("validate_command", command, true, "")
		return nil
	}

	if _, ok := cfg.AllowedCommands[command]; ok {
		v.record("validate_command", command, true, "")
		return nil
	}

	reason := "command is not in the allowlist"
	v.record("validate_command", command, false, reason)
	return agenterr.New(agenterr.KindSecurity, "Security validation failed: command '"+command+"' is not allowed")
}

// ValidatePath succeeds iff path begins with at least one allowed-path
// prefix, or path restriction is disabled. The prefix comparison is
// strings.HasPrefix, which is byte-exact and therefore case-sensitive on
// every platform; it does not adapt to case-insensitive filesystems.
func (v *Validator) ValidatePath(path string) error {
	v.mu.RLock()
	cfg := v.cfg
	v.mu.RUnlock()

	if !cfg.EnablePathRestriction {
		v.record("validate_path", path, true, "")
		return nil
	}

	for _, allowed := range cfg.AllowedPaths {
		if strings.HasPrefix(path, allowed) {
			v.record("validate_path", path, true, "")
			return nil
		}
	}

	reason := "path is outside every allowed prefix"
	v.record("validate_path", path, false, reason)
	return agenterr.New(agenterr.KindSecurity, "Security validation failed: path '"+path+"' is not allowed")
}

// ValidateFileSize fails iff size exceeds the configured maximum.
func (v *Validator) ValidateFileSize(size int64) error {
	v.mu.RLock()
	maxSize := v.cfg.MaxFileSize
	v.mu.RUnlock()

	if size > maxSize {
		v.record("validate_file_size", "", false, "file size exceeds maximum")
		return agenterr.New(agenterr.KindSecurity, "Security validation failed: file size exceeds maximum allowed size")
	}
	v.record("validate_file_size", "", true, "")
	return nil
}

func (v *Validator) record(action, subject string, allowed bool, reason string) {
	event := types.AuditEvent{
		Timestamp: time.Now().UTC(),
		Actor:     "control-plane",
		Action:    action,
		Subject:   subject,
		Allowed:   allowed,
		Reason:    reason,
	}
	if !allowed {
		v.logger.Warn("security validation rejected", "action", action, "subject", subject, "reason", reason)
	}
	if v.audit != nil {
		v.audit.Audit(event)
	}
}
