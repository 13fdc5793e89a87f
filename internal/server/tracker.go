// Package server exposes the HTTP surface: the public leaderboard read API
// and the secret-protected job trigger used by the cron scheduler.
package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"wow-tracker/internal/config"
	"wow-tracker/internal/service"
)

type TrackerServer struct {
	cfg         *config.Config
	daily       *service.DailyService
	leaderboard *service.LeaderboardService
	logger      zerolog.Logger
}

func NewTrackerServer(
	cfg *config.Config,
	daily *service.DailyService,
	leaderboard *service.LeaderboardService,
	logger zerolog.Logger,
) *TrackerServer {
	return &TrackerServer{
		cfg:         cfg,
		daily:       daily,
		leaderboard: leaderboard,
		logger:      logger,
	}
}

func (s *TrackerServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/leaderboard/latest", s.handleLatestLeaderboard)
	mux.HandleFunc("GET /api/jobs/daily", s.handleDailyJob)
	mux.HandleFunc("GET /api/health", s.handleHealth)
}

func (s *TrackerServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *TrackerServer) handleLatestLeaderboard(w http.ResponseWriter, r *http.Request) {
	view, err := s.leaderboard.Latest(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("leaderboard query failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load leaderboard"})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleDailyJob is the cron entrypoint. Responses are never cached and
// authorization is a constant-time bearer-secret comparison: 503 when no
// secret is configured at all, 401 on mismatch.
func (s *TrackerServer) handleDailyJob(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	if s.cfg.CronSecret == "" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ok":    false,
			"error": "CRON_SECRET is not configured.",
		})
		return
	}
	if !authorized(r, s.cfg.CronSecret) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"ok":    false,
			"error": "Unauthorized.",
		})
		return
	}

	result := s.daily.Run(r.Context(), isDryRun(r))

	s.logger.Info().
		Bool("ok", result.OK).
		Str("mode", result.Mode).
		Str("snapshotDate", result.SnapshotDate).
		Str("pollStatus", result.Poll.Status).
		Str("digestStatus", result.Digest.Status).
		Msg("daily cron run")

	status := http.StatusOK
	if !result.OK {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, result)
}

func authorized(r *http.Request, secret string) bool {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return false
	}
	expected := "Bearer " + secret
	return subtle.ConstantTimeCompare([]byte(authHeader), []byte(expected)) == 1
}

func isDryRun(r *http.Request) bool {
	raw := strings.TrimSpace(strings.ToLower(r.URL.Query().Get("dryRun")))
	return raw == "1" || raw == "true"
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
