package telemetry

import (
	"testing"

	"planetarena/server/internal/logging"
)

func TestInitSentryDisabledWithoutDSN(t *testing.T) {
	flush, err := InitSentry("  ", "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	//1.- The returned flush must be safe to call when reporting is off.
	flush()
}

func TestPanicReporterDoesNotPanicWithoutClient(t *testing.T) {
	report := PanicReporter(logging.NewTestLogger(), map[string]string{"component": "test"})
	report("boom")
}
