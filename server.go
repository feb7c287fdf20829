package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/Tutortoise/live-detection-service/models"
	"github.com/Tutortoise/live-detection-service/pipeline"
)

const liveCacheControl = "max-age=5"

// detectorControl is the part of the scheduler the HTTP layer drives.
type detectorControl interface {
	Configure(ctx context.Context) (models.ConfigurationStatus, error)
	LastStatus() (models.ConfigurationStatus, bool)
	Metrics() pipeline.MetricsSnapshot
}

type preferenceHolder interface {
	Preferences() models.Preferences
	Set(ctx context.Context, p models.Preferences) (bool, error)
}

type emitterStats interface {
	Stats() (published, failed uint64)
}

type AppState struct {
	Detector         detectorControl
	Preferences      preferenceHolder
	Live             *LiveSlot
	Emitter          emitterStats
	ConfigureTimeout time.Duration
	Log              *logrus.Entry
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// PreferencesResponse is returned after a preferences update. Status is the
// outcome of the detector configuration the update triggered.
type PreferencesResponse struct {
	Preferences models.Preferences          `json:"preferences"`
	Status      *models.ConfigurationStatus `json:"status"`
}

func newRouter(s *AppState) *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/live", s.handleLive).Methods("GET")
	api.HandleFunc("/inference-statistics", s.handleStatistics).Methods("GET")
	api.HandleFunc("/user-preferences", s.handleGetPreferences).Methods("GET")
	api.HandleFunc("/user-preferences", s.handleSetPreferences).Methods("POST")
	api.HandleFunc("/user-preferences-status", s.handlePreferencesStatus).Methods("GET")
	api.HandleFunc("/acceleration-types", s.handleAccelerationTypes).Methods("GET")
	s.addMonitoringRoutes(r)
	return r
}

func (s *AppState) addMonitoringRoutes(r *mux.Router) {
	r.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
}

func (s *AppState) handleLive(w http.ResponseWriter, _ *http.Request) {
	img, ok := s.Live.Image()
	if !ok {
		sendErrorResponse(w, "no_frame", "No frame has been processed yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", liveCacheControl)
	w.Write(img)
}

func (s *AppState) handleStatistics(w http.ResponseWriter, _ *http.Request) {
	stats, ok := s.Live.Stats()
	if !ok {
		sendErrorResponse(w, "no_statistics", "The object detector is not configured", http.StatusNotFound)
		return
	}
	sendJSON(w, http.StatusOK, stats)
}

func (s *AppState) handleGetPreferences(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, http.StatusOK, s.Preferences.Preferences())
}

func (s *AppState) handleSetPreferences(w http.ResponseWriter, r *http.Request) {
	// Fields missing from the body keep their current values.
	prefs := s.Preferences.Preferences()
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		sendErrorResponse(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}

	changed, err := s.Preferences.Set(r.Context(), prefs)
	if err != nil {
		sendErrorResponse(w, "invalid_preferences", err.Error(), http.StatusBadRequest)
		return
	}
	resp := PreferencesResponse{Preferences: prefs}

	// Every update reconfigures, including an unchanged mode. Concurrent
	// updates share one attempt.
	ctx, cancel := context.WithTimeout(r.Context(), s.ConfigureTimeout)
	defer cancel()
	status, err := s.Detector.Configure(ctx)
	resp.Status = &status
	switch {
	case errors.Is(err, pipeline.ErrStopped):
		sendErrorResponse(w, "shutting_down", status.Message, http.StatusServiceUnavailable)
	case errors.Is(err, pipeline.ErrInterruptedWait):
		s.Log.WithError(err).WithField("acceleration_changed", changed).Warn("preferences saved before the detector reported its status")
		sendJSON(w, http.StatusAccepted, resp)
	default:
		sendJSON(w, http.StatusOK, resp)
	}
}

func (s *AppState) handlePreferencesStatus(w http.ResponseWriter, _ *http.Request) {
	status, ok := s.Detector.LastStatus()
	if !ok {
		sendErrorResponse(w, "no_status", "The object detector has not been configured yet", http.StatusNotFound)
		return
	}
	sendJSON(w, http.StatusOK, status)
}

func (s *AppState) handleAccelerationTypes(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, http.StatusOK, models.AccelerationModes())
}

func (s *AppState) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := s.Detector.Metrics()
	seq, updated := s.Live.Updated()
	response := map[string]interface{}{
		"frames_submitted":       m.Submitted,
		"frames_dropped":         m.Dropped,
		"frames_rejected":        m.Rejected,
		"frames_processed":       m.Processed,
		"frames_failed":          m.Failed,
		"configurations":         m.Configurations,
		"configuration_failures": m.ConfigFailures,
		"last_frame_seq":         seq,
	}
	if !updated.IsZero() {
		response["last_frame_at"] = updated.UTC().Format(time.RFC3339Nano)
	}
	if s.Emitter != nil {
		published, failed := s.Emitter.Stats()
		response["mqtt_published"] = published
		response["mqtt_failures"] = failed
	}
	sendJSON(w, http.StatusOK, response)
}

func sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendErrorResponse(w http.ResponseWriter, code, message string, status int) {
	sendJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}
