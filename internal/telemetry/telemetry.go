// Package telemetry connects the server to crash reporting and the runtime stats viewer.
package telemetry

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"

	"planetarena/server/internal/logging"
)

// InitSentry configures the global Sentry client. An empty DSN leaves reporting
// disabled and returns a no-op flush.
func InitSentry(dsn, release string) (flush func(), err error) {
	if strings.TrimSpace(dsn) == "" {
		return func() {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{Dsn: dsn, Release: release, AttachStacktrace: true}); err != nil {
		return nil, fmt.Errorf("init sentry: %w", err)
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// ReportPanic logs a recovered panic and forwards it to Sentry tagged with tags.
func ReportPanic(logger *logging.Logger, recovered any, tags map[string]string) {
	fields := []logging.Field{logging.String("panic", fmt.Sprint(recovered))}
	keys := make([]string, 0, len(tags))
	for key := range tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fields = append(fields, logging.String(key, tags[key]))
	}
	logger.Error("recovered panic", fields...)

	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		for key, value := range tags {
			scope.SetTag(key, value)
		}
	})
	hub.Recover(fmt.Errorf("%v", recovered))
}

// PanicReporter adapts ReportPanic to a callback carrying fixed tags.
func PanicReporter(logger *logging.Logger, tags map[string]string) func(any) {
	return func(recovered any) { ReportPanic(logger, recovered, tags) }
}

// StartStatsView serves the runtime stats dashboard on addr and returns its stop function.
func StartStatsView(addr string) (stop func()) {
	//1.- Configuration must be applied before the manager is built.
	viewer.SetConfiguration(viewer.WithTheme(viewer.ThemeWesteros), viewer.WithAddr(addr))
	mgr := statsview.New()
	go mgr.Start()
	return mgr.Stop
}
