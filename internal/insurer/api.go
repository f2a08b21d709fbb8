package insurer

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/claimwise/platform/internal/shared/auth"
	"github.com/claimwise/platform/internal/shared/errors"
	"github.com/claimwise/platform/internal/shared/events"
	"github.com/claimwise/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the insurer registry
type Handler struct {
	repo *Repository
	bus  *events.Bus
}

// NewHandler creates a new insurer handler
func NewHandler(repo *Repository, bus *events.Bus) *Handler {
	return &Handler{repo: repo, bus: bus}
}

// Routes registers the insurer routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)

	r.Route("/{insurerID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
	})

	return r
}

// List lists insurers
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := ListInsurersFilter{
		Search: r.URL.Query().Get("search"),
	}

	if t := r.URL.Query().Get("type"); t != "" {
		insurerType := InsurerType(t)
		filter.Type = &insurerType
	}

	if s := r.URL.Query().Get("status"); s != "" {
		status := InsurerStatus(s)
		filter.Status = &status
	}

	insurers, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  insurers,
		"total": total,
	})
}

// Get gets an insurer by ID
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "insurerID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid insurer ID"))
		return
	}

	ins, err := h.repo.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ins)
}

// Create registers a new insurer
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}

	var req CreateInsurerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if req.Code == "" || req.Name == "" {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"code": "code is required",
			"name": "name is required",
		}))
		return
	}

	now := time.Now()
	ins := &Insurer{
		// Derived from the code so the same carrier gets the same ID in
		// every environment
		ID:        types.NewDeterministicID("insurer", req.Code),
		Code:      req.Code,
		Name:      req.Name,
		Type:      req.Type,
		Status:    InsurerStatusActive,
		Contact:   req.Contact,
		Adapter:   req.Adapter,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.repo.Create(r.Context(), ins); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, "insurer.registered", map[string]any{
		"insurer_id":   ins.ID,
		"insurer_code": ins.Code,
		"insurer_name": ins.Name,
	})

	writeJSON(w, http.StatusCreated, ins)
}

// Update updates an insurer
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}

	id, err := types.ParseID(chi.URLParam(r, "insurerID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid insurer ID"))
		return
	}

	ins, err := h.repo.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	var req UpdateInsurerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if req.Name != nil {
		ins.Name = *req.Name
	}
	if req.Status != nil {
		ins.Status = *req.Status
	}
	if req.Contact != nil {
		ins.Contact = *req.Contact
	}
	if req.Adapter != nil {
		ins.Adapter = *req.Adapter
	}
	ins.UpdatedAt = time.Now()

	if err := h.repo.Update(r.Context(), ins); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, "insurer.updated", map[string]any{
		"insurer_id":   ins.ID,
		"insurer_code": ins.Code,
		"status":       ins.Status,
	})

	writeJSON(w, http.StatusOK, ins)
}

// Delete removes an insurer from the registry
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}

	id, err := types.ParseID(chi.URLParam(r, "insurerID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid insurer ID"))
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, "insurer.removed", map[string]any{
		"insurer_id": id,
	})

	w.WriteHeader(http.StatusNoContent)
}

func requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	user := auth.UserFromContext(r.Context())
	if user == nil || !user.HasRole("admin") {
		writeError(w, errors.Forbidden("admin role required"))
		return false
	}
	return true
}

func (h *Handler) publish(r *http.Request, eventType string, data map[string]any) {
	if h.bus == nil {
		return
	}

	actorID := types.ID("")
	actorType := "system"
	if user := auth.UserFromContext(r.Context()); user != nil {
		actorID = user.ID
		actorType = "user"
	}

	event := events.NewEvent(eventType, "insurer", data).WithActor(actorID, actorType)
	h.bus.Publish(r.Context(), event)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
