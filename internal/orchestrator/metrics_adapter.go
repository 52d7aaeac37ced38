package orchestrator

import (
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/literature-crawler/internal/crawler"
)

// MetricsAdapter turns a finished CrawlResult into one recorder call: success
// when anything was saved, failure with the result message otherwise. Recorder
// panics are swallowed and logged.
type MetricsAdapter struct {
	recorder crawler.MetricsRecorder
	clock    crawler.Clock
	logger   *zap.Logger
}

// NewMetricsAdapter wraps recorder. A nil recorder makes Record a no-op.
func NewMetricsAdapter(recorder crawler.MetricsRecorder, clock crawler.Clock, logger *zap.Logger) *MetricsAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetricsAdapter{recorder: recorder, clock: clock, logger: logger}
}

// Record reports result, back-dating the start time by its duration.
func (m *MetricsAdapter) Record(result crawler.CrawlResult) {
	if m == nil || m.recorder == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("metrics recorder panicked", zap.Any("panic", r))
		}
	}()
	start := m.clock.Now().Add(-time.Duration(result.DurationMs) * time.Millisecond)
	if result.Saved > 0 {
		m.recorder.RecordSuccess(result.Keyword, MetricsSourceLabel, start, result.Found, result.Saved)
		return
	}
	m.recorder.RecordFailure(result.Keyword, MetricsSourceLabel, start, result.Message)
}
