package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/bobarin/gigi/internal/logging"
	"github.com/bobarin/gigi/internal/models"
	"github.com/bobarin/gigi/internal/pipeline"
	"github.com/bobarin/gigi/internal/queue"
	"github.com/bobarin/gigi/internal/services"
	"github.com/bobarin/gigi/internal/store"
	"github.com/bobarin/gigi/internal/wizard"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// JobLookup reports the state of a queued job. *worker.Worker implements it.
type JobLookup interface {
	Job(id uuid.UUID) (models.JobRecord, bool)
}

type Handler struct {
	wizard   *wizard.Controller
	jobs     JobLookup
	validate *validator.Validate
	log      zerolog.Logger
}

func NewHandler(ctl *wizard.Controller, jobs JobLookup) *Handler {
	return &Handler{
		wizard:   ctl,
		jobs:     jobs,
		validate: validator.New(),
		log:      logging.Component("api"),
	}
}

// ListBrands handles GET /v1/brands
func (h *Handler) ListBrands(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.wizard.Brands())
}

// CreateSession handles POST /v1/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	sess := h.wizard.CreateSession()
	respondJSON(w, http.StatusCreated, models.CreateSessionResponse{
		SessionID: sess.ID,
		Step:      sess.Step,
	})
}

// GetSession handles GET /v1/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	sess, err := h.wizard.Session(id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// Back handles POST /v1/sessions/{id}/back
func (h *Handler) Back(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	sess, err := h.wizard.Back(id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// Advance handles POST /v1/sessions/{id}/advance
func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	sess, err := h.wizard.Advance(id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// SelectBrand handles PUT /v1/sessions/{id}/brand
func (h *Handler) SelectBrand(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req models.SelectBrandRequest
	if !h.decode(w, r, &req) {
		return
	}
	sess, err := h.wizard.SelectBrand(id, req)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// GenerateScenario handles POST /v1/sessions/{id}/scenario
// The call is synchronous; scenario generation takes seconds, not minutes.
func (h *Handler) GenerateScenario(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	sess, err := h.wizard.GenerateScenario(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// ConfirmScenario handles POST /v1/sessions/{id}/scenario/confirm
func (h *Handler) ConfirmScenario(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req models.ConfirmScenarioRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	sess, err := h.wizard.ConfirmScenario(id, req.Scenario)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// GenerateTimeline handles POST /v1/sessions/{id}/timeline
func (h *Handler) GenerateTimeline(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req models.GenerateTimelineRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	rec, err := h.wizard.RequestTimeline(r.Context(), id, req.VideoDurationSec)
	h.respondJob(w, rec, err)
}

// UpdateScene handles PATCH /v1/sessions/{id}/scenes/{index}
func (h *Handler) UpdateScene(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	index, ok := sceneIndex(w, r)
	if !ok {
		return
	}
	var req models.UpdateSceneRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.wizard.UpdateScene(id, index, req)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// CopyPreviousStyle handles POST /v1/sessions/{id}/scenes/{index}/copy-style
func (h *Handler) CopyPreviousStyle(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	index, ok := sceneIndex(w, r)
	if !ok {
		return
	}
	item, err := h.wizard.CopyPreviousStyle(id, index)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// ComposeImage handles POST /v1/sessions/{id}/scenes/{index}/image
func (h *Handler) ComposeImage(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	index, ok := sceneIndex(w, r)
	if !ok {
		return
	}
	rec, err := h.wizard.RequestImage(r.Context(), id, index)
	h.respondJob(w, rec, err)
}

// ApplyVoice handles PUT /v1/sessions/{id}/voice
func (h *Handler) ApplyVoice(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req models.ApplyVoiceRequest
	if !h.decode(w, r, &req) {
		return
	}
	sess, err := h.wizard.ApplyVoice(id, req)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// FinalizeStoryboard handles POST /v1/sessions/{id}/storyboard/finalize
func (h *Handler) FinalizeStoryboard(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	sess, err := h.wizard.FinalizeStoryboard(id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// GenerateVideo handles POST /v1/sessions/{id}/videos/{index}/generate
func (h *Handler) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	index, ok := sceneIndex(w, r)
	if !ok {
		return
	}
	rec, err := h.wizard.RequestScene(r.Context(), id, index)
	h.respondJob(w, rec, err)
}

// GenerateAllVideos handles POST /v1/sessions/{id}/videos/generate-all
func (h *Handler) GenerateAllVideos(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	rec, err := h.wizard.RequestAll(r.Context(), id)
	h.respondJob(w, rec, err)
}

// Merge handles POST /v1/sessions/{id}/merge
func (h *Handler) Merge(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	rec, err := h.wizard.RequestMerge(r.Context(), id)
	h.respondJob(w, rec, err)
}

// GetJob handles GET /v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job ID")
		return
	}
	rec, ok := h.jobs.Job(id)
	if !ok {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helper methods

func sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid session ID")
		return uuid.Nil, false
	}
	return id, true
}

func sceneIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		respondError(w, http.StatusBadRequest, "Invalid scene index")
		return 0, false
	}
	return index, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return h.check(w, dst)
}

// decodeOptional accepts an empty body for requests whose fields are all optional.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return h.check(w, dst)
}

func (h *Handler) check(w http.ResponseWriter, dst any) bool {
	if err := h.validate.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *Handler) respondJob(w http.ResponseWriter, rec models.JobRecord, err error) {
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, models.JobAcceptedResponse{
		JobID:     rec.ID,
		Type:      rec.Type,
		SessionID: rec.SessionID,
	})
}

// respondErr maps controller and store errors to HTTP statuses.
func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Int("status", status).Msg("request failed")
	}
	respondError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrSessionNotFound),
		errors.Is(err, store.ErrSceneNotFound):
		return http.StatusNotFound

	case errors.Is(err, wizard.ErrWrongStep),
		errors.Is(err, store.ErrPredecessorIncomplete),
		errors.Is(err, store.ErrSceneBusy),
		errors.Is(err, wizard.ErrTimelineBusy),
		errors.Is(err, wizard.ErrMergeRunning),
		errors.Is(err, wizard.ErrNothingCompleted):
		return http.StatusConflict

	case errors.Is(err, wizard.ErrNoBrand),
		errors.Is(err, wizard.ErrEmptyStoryboard),
		errors.Is(err, wizard.ErrNoPreviousScene),
		errors.Is(err, pipeline.ErrNoScenario),
		errors.Is(err, pipeline.ErrNoVideos):
		return http.StatusBadRequest

	case errors.Is(err, queue.ErrQueueFull),
		errors.Is(err, queue.ErrQueueClosed):
		return http.StatusServiceUnavailable

	case errors.Is(err, services.ErrServiceStatus),
		errors.Is(err, services.ErrServiceFailed):
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
