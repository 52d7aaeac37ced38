package api

import (
	"net/http"
	"strconv"
)

const (
	defaultTrendHours = 24
	maxTrendHours     = 24 * 7
	recentCrawls      = 10
)

// crawlMetrics mirrors the monitoring summary: overall figures, per-source
// counters and the latest crawls.
func (s *Server) crawlMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"overall":      s.stats.Overall(),
		"sources":      s.stats.Sources(),
		"recentCrawls": s.stats.Recent(recentCrawls),
	})
}

func (s *Server) crawlTrends(w http.ResponseWriter, r *http.Request) {
	hours := defaultTrendHours
	if raw := r.URL.Query().Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid hours")
			return
		}
		hours = min(n, maxTrendHours)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hours":  hours,
		"trends": s.stats.Trends(hours),
	})
}

func (s *Server) resetMetrics(w http.ResponseWriter, _ *http.Request) {
	s.stats.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.Health())
}
