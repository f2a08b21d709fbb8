package policy

import (
	"encoding/json"
	"net/http"

	"github.com/claimwise/platform/internal/shared/auth"
	"github.com/claimwise/platform/internal/shared/errors"
	"github.com/claimwise/platform/internal/shared/events"
	"github.com/claimwise/platform/internal/shared/metrics"
	"github.com/claimwise/platform/internal/shared/types"
	"github.com/go-chi/chi/v5"
)

// Handler provides HTTP handlers for the policy module
type Handler struct {
	repo       *Repository
	normalizer *Normalizer
	bus        *events.Bus
}

// NewHandler creates a new policy handler
func NewHandler(repo *Repository, normalizer *Normalizer, bus *events.Bus) *Handler {
	return &Handler{repo: repo, normalizer: normalizer, bus: bus}
}

// Routes registers the policy routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.NormalizePolicy)
	r.Get("/", h.ListPolicies)

	r.Route("/{policyID}", func(r chi.Router) {
		r.Get("/", h.GetPolicy)
		r.Post("/supersede", h.SupersedePolicy)
	})

	return r
}

// NormalizePolicy validates a raw extraction and stores the resulting record
func (h *Handler) NormalizePolicy(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}

	var raw RawExtraction
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	record, incomplete, err := h.normalizer.Normalize(user.ID, raw)
	if err != nil {
		writeError(w, err)
		return
	}
	if incomplete != nil {
		metrics.RecordExtractionIncomplete()
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"code":       "EXTRACTION_INCOMPLETE",
			"extraction": incomplete,
		})
		return
	}

	if err := h.repo.Save(r.Context(), record); err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordPolicyNormalized(record.Insurer, record.PolicyType)
	h.publish(r, events.TypePolicyNormalized, record)

	writeJSON(w, http.StatusCreated, record)
}

// ListPolicies lists the caller's active policy records
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}

	policies, err := h.repo.ListActiveByUser(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  policies,
		"total": len(policies),
	})
}

// GetPolicy gets one policy record by ID
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}

	id, err := types.ParseID(chi.URLParam(r, "policyID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid policy ID"))
		return
	}

	record, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if record.UserID != user.ID {
		writeError(w, errors.NotFound("policy", id.String()))
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// SupersedePolicy normalizes a re-uploaded document and replaces the old
// record with a new version
func (h *Handler) SupersedePolicy(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}

	oldID, err := types.ParseID(chi.URLParam(r, "policyID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid policy ID"))
		return
	}

	var raw RawExtraction
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	record, incomplete, err := h.normalizer.Normalize(user.ID, raw)
	if err != nil {
		writeError(w, err)
		return
	}
	if incomplete != nil {
		metrics.RecordExtractionIncomplete()
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"code":       "EXTRACTION_INCOMPLETE",
			"extraction": incomplete,
		})
		return
	}

	if err := h.repo.Supersede(r.Context(), oldID, record); err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordPolicyNormalized(record.Insurer, record.PolicyType)
	h.publish(r, events.TypePolicySuperseded, map[string]any{
		"old_policy_id": oldID,
		"policy":        record,
	})

	writeJSON(w, http.StatusCreated, record)
}

func (h *Handler) publish(r *http.Request, eventType string, data any) {
	if h.bus == nil {
		return
	}
	user := auth.UserFromContext(r.Context())
	event := events.NewEvent(eventType, "policy", data)
	if user != nil {
		event = event.WithActor(user.ID, "user")
	}
	// Best-effort: event delivery must not fail the request
	_ = h.bus.Publish(r.Context(), event)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	if appErr, ok := err.(*errors.AppError); ok {
		writeJSON(w, appErr.HTTPStatus, appErr)
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "internal server error"})
}
