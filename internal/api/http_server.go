package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/abelzeko/water-monitor/internal/entities"
	"github.com/abelzeko/water-monitor/internal/log"
	"github.com/abelzeko/water-monitor/internal/metrics"
	"github.com/abelzeko/water-monitor/internal/usecases"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// HTTPServer exposes one dashboard session as a JSON API
type HTTPServer struct {
	useCase *usecases.WaterUseCase
	session *usecases.Session
	server  *http.Server
}

// NewHTTPServer creates the API server for a session
func NewHTTPServer(addr string, useCase *usecases.WaterUseCase, session *usecases.Session) *HTTPServer {
	s := &HTTPServer{
		useCase: useCase,
		session: session,
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler builds the routed, logged and CORS-enabled handler
func (s *HTTPServer) Handler() http.Handler {
	router := mux.NewRouter()

	routes := router.PathPrefix("/api").Subrouter()
	routes.HandleFunc("/sources", s.listSources).Methods(http.MethodGet)
	routes.HandleFunc("/sources", s.registerSource).Methods(http.MethodPost)
	routes.HandleFunc("/sources/{name}", s.getSource).Methods(http.MethodGet)
	routes.HandleFunc("/sources/{name}/parameters", s.saveParameters).Methods(http.MethodPut)
	routes.HandleFunc("/sources/{name}/refresh", s.refreshSource).Methods(http.MethodPost)
	routes.HandleFunc("/sources/{name}/prediction", s.predict).Methods(http.MethodGet)
	routes.HandleFunc("/districts", s.listDistricts).Methods(http.MethodGet)
	routes.HandleFunc("/active", s.getActive).Methods(http.MethodGet)
	routes.HandleFunc("/active", s.setActive).Methods(http.MethodPut)
	routes.HandleFunc("/map/markers", s.mapMarkers).Methods(http.MethodGet)
	routes.HandleFunc("/map/nearby", s.nearby).Methods(http.MethodGet)
	routes.HandleFunc("/devices/pair", s.getDevice).Methods(http.MethodGet)
	routes.HandleFunc("/devices/pair", s.pairDevice).Methods(http.MethodPost)
	routes.HandleFunc("/devices/pair", s.disconnectDevice).Methods(http.MethodDelete)

	router.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	accessLog := zap.NewStdLog(log.Logger().Desugar()).Writer()
	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
	return handlers.RecoveryHandler()(handlers.LoggingHandler(accessLog, cors(router)))
}

// Start serves until ctx is cancelled
func (s *HTTPServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Infof("HTTP API listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
		log.Info("Shutting down the HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *HTTPServer) listSources(w http.ResponseWriter, r *http.Request) {
	var statuses []usecases.SourceStatus
	var err error
	if district := r.URL.Query().Get("district"); district != "" {
		statuses, err = s.useCase.DistrictStatuses(s.session, district)
	} else {
		statuses, err = s.useCase.ListStatuses(s.session)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

type registerRequest struct {
	Name     string `json:"name"`
	District string `json:"district"`
}

func (s *HTTPServer) registerSource(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, errors.New("name is required"))
		return
	}

	st, err := s.useCase.RegisterSource(s.session, req.Name, req.District)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (s *HTTPServer) getSource(w http.ResponseWriter, r *http.Request) {
	st, err := s.useCase.GetSourceStatus(s.session, mux.Vars(r)["name"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// formFields flattens a JSON body of numbers or strings into form input
func formFields(body map[string]interface{}) map[string]string {
	fields := make(map[string]string, len(body))
	for _, key := range []string{"ph", "temp", "turbidity", "tds"} {
		v, ok := body[key]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case string:
			fields[key] = val
		case float64:
			fields[key] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			fields[key] = ""
		}
	}
	return fields
}

func (s *HTTPServer) saveParameters(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	patch := usecases.ParseManualParameters(formFields(body))
	st, err := s.useCase.SaveManual(s.session, mux.Vars(r)["name"], patch)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *HTTPServer) refreshSource(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	s.useCase.ScheduleRefresh(s.session, name, nil)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"source": name,
		"status": "syncing",
	})
}

func (s *HTTPServer) predict(w http.ResponseWriter, r *http.Request) {
	lang := s.session.Active().Language
	if tag := r.URL.Query().Get("lang"); tag != "" {
		parsed, err := entities.ParseLanguage(tag)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		lang = parsed
	}

	res, err := s.useCase.PredictForSource(r.Context(), s.session, mux.Vars(r)["name"], lang)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type districtResponse struct {
	Name    string   `json:"name"`
	Sources []string `json:"sources"`
}

func (s *HTTPServer) listDistricts(w http.ResponseWriter, r *http.Request) {
	result := make([]districtResponse, 0, len(entities.Districts))
	for _, d := range entities.Districts {
		sources := entities.SourcesByDistrict[d]
		if sources == nil {
			sources = []string{}
		}
		result = append(result, districtResponse{Name: d, Sources: sources})
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) getActive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Active())
}

func (s *HTTPServer) setActive(w http.ResponseWriter, r *http.Request) {
	var req usecases.Selection
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Language != "" {
		lang, err := entities.ParseLanguage(string(req.Language))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		s.session.SetLanguage(lang)
	}
	s.session.Select(req.District, req.Source)
	writeJSON(w, http.StatusOK, s.session.Active())
}

func (s *HTTPServer) mapMarkers(w http.ResponseWriter, r *http.Request) {
	markers, err := s.useCase.MapMarkers(s.session)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, markers)
}

func (s *HTTPServer) nearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid lat: %w", err))
		return
	}
	lng, err := strconv.ParseFloat(q.Get("lng"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid lng: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, s.useCase.NearbyInsight(r.Context(), entities.Location{Lat: lat, Lng: lng}))
}

func (s *HTTPServer) getDevice(w http.ResponseWriter, r *http.Request) {
	p, ok := s.session.Devices.Current()
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("no device paired"))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *HTTPServer) pairDevice(w http.ResponseWriter, r *http.Request) {
	var outcome usecases.PairingOutcome
	if err := json.NewDecoder(r.Body).Decode(&outcome); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	p, err := s.session.Devices.Pair(outcome)
	switch {
	case errors.Is(err, usecases.ErrPairingCancelled):
		w.WriteHeader(http.StatusNoContent)
	case err != nil:
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:   err.Error(),
			Message: usecases.PairingMessage(err),
		})
	default:
		log.Infof("Paired device %s (%s)", p.DeviceName, p.ID)
		writeJSON(w, http.StatusCreated, p)
	}
}

func (s *HTTPServer) disconnectDevice(w http.ResponseWriter, r *http.Request) {
	s.session.Devices.Disconnect()
	w.WriteHeader(http.StatusNoContent)
}
