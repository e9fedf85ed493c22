package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Tutortoise/defect-classification-service/classification"
	"github.com/Tutortoise/defect-classification-service/logging"
	"github.com/Tutortoise/defect-classification-service/metrics"
	"github.com/Tutortoise/defect-classification-service/models"
)

type AppState struct {
	Classifier     *classification.Classifier
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
	MaxUploadBytes int64
}

func newRouter(state *AppState) *mux.Router {
	r := mux.NewRouter()
	r.Use(state.requestMiddleware, corsMiddleware)

	r.HandleFunc("/", state.handleRoot).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/health", state.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/predict", state.handlePredict).Methods(http.MethodPost, http.MethodOptions)
	state.addMonitoringRoutes(r)
	return r
}

func (s *AppState) addMonitoringRoutes(r *mux.Router) {
	r.Handle("/metrics", s.Metrics.Handler()).Methods(http.MethodGet)
}

func (s *AppState) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, models.InfoResponse{
		Message:   MsgRunning,
		Endpoints: endpointDescriptions,
	})
}

func (s *AppState) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.Classifier.Health(r.Context()); err != nil {
		logging.WithRequest(s.Logger, "http.health", requestIDFrom(r.Context())).
			Error("model unavailable", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, models.HealthResponse{
			Status: StatusUnhealthy,
			Error:  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, models.HealthResponse{Status: StatusHealthy, ModelLoaded: true})
}

func (s *AppState) handlePredict(w http.ResponseWriter, r *http.Request) {
	startTotal := time.Now()
	requestID := requestIDFrom(r.Context())
	logger := logging.WithRequest(s.Logger, "http.predict", requestID)
	timings := &models.ProcessingTimings{RequestID: requestID}

	imgBytes, status, err := s.readUpload(w, r)
	if err != nil {
		logger.Info("rejected upload", zap.Int("status", status), zap.Error(err))
		msg := MsgNoFile
		if status == http.StatusRequestEntityTooLarge {
			msg = MsgFileTooLarge
		} else if status == http.StatusInternalServerError {
			msg = MsgReadFailed
		}
		sendErrorResponse(w, msg, status)
		return
	}

	prediction, err := s.Classifier.Classify(r.Context(), imgBytes, timings)
	if err != nil {
		kind := classification.KindOf(err)
		s.Metrics.ObserveFailure(kind)
		logger.Error("prediction error", zap.Stringer("kind", kind), zap.Error(err))
		sendErrorResponse(w, err.Error(), statusForKind(kind))
		return
	}

	timings.Total = time.Since(startTotal)
	s.Metrics.ObserveInference(timings.Inference)
	s.Metrics.ObservePrediction(prediction.PredictedClass)
	logTimings(logger, timings)

	writeJSON(w, http.StatusOK, prediction)
}

// readUpload returns the bytes of the "file" form field along with the status
// to report when it cannot.
func (s *AppState) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, err
		}
		return nil, http.StatusBadRequest, err
	}

	file, _, err := r.FormFile(uploadFieldName)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	return data, http.StatusOK, nil
}

func statusForKind(kind classification.Kind) int {
	if kind == classification.KindBusy {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func logTimings(logger *zap.Logger, t *models.ProcessingTimings) {
	logger.Debug("processing times",
		zap.Duration("model_load", t.ModelLoad),
		zap.Duration("image_decode", t.ImageDecode),
		zap.Duration("resize", t.Resize),
		zap.Duration("preprocess", t.Preprocess),
		zap.Duration("inference", t.Inference),
		zap.Duration("postprocess", t.Postprocess),
		zap.Duration("total", t.Total),
	)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendErrorResponse(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, models.ErrorResponse{Error: message})
}
