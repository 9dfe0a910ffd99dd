package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chicago-crimes/crimectl/internal/pipeline"
)

// AuditEntry is one line of the append-only run log.
type AuditEntry struct {
	Timestamp  string         `json:"timestamp"`
	Operation  string         `json:"operation"` // "apply", "step:<name>"
	User       string         `json:"user"`
	RunID      string         `json:"run_id"`
	DryRun     bool           `json:"dry_run,omitempty"`
	Summary    map[string]int `json:"summary,omitempty"`
	FailedStep string         `json:"failed_step,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// crimectlDir returns the local directory for run records.
func crimectlDir() string {
	return ".crimectl"
}

// auditLogPath returns the path to the audit log file.
func auditLogPath() string {
	return filepath.Join(crimectlDir(), "audit.log")
}

// recordRun appends the outcome of a run to the audit log.
func recordRun(operation string, run *pipeline.Run, runErr error) {
	entry := AuditEntry{
		Operation:  operation,
		RunID:      run.ID,
		DryRun:     run.DryRun,
		Summary:    make(map[string]int),
		FailedStep: run.FailedStep,
	}
	for outcome, n := range summarize(run) {
		entry.Summary[string(outcome)] = n
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}
	_ = writeAuditLog(entry)
}

// writeAuditLog appends an audit entry to the audit log file.
func writeAuditLog(entry AuditEntry) error {
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if entry.User == "" {
		entry.User = currentUser()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	if err := os.MkdirAll(crimectlDir(), 0755); err != nil {
		// Audit logging failure should not block operations
		return nil
	}
	f, err := os.OpenFile(auditLogPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil
	}
	defer f.Close()

	_, err = f.WriteString(string(data) + "\n")
	return err
}

func currentUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	if user := os.Getenv("USERNAME"); user != "" {
		return user
	}
	return "unknown"
}
