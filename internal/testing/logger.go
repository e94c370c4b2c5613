package testutil

import (
	"testing"

	"venue-rails/pkg/logging"
)

// NewTestLogger returns a quiet synchronous logger for unit tests.
func NewTestLogger(t *testing.T) *logging.Logger {
	t.Helper()
	log, err := logging.NewLogger(logging.LogConfig{
		Level:  logging.LevelError,
		Format: "text",
		Output: "stderr",
	})
	if err != nil {
		t.Fatalf("test logger: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })
	return log
}
