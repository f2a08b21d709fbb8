package recommendation

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/claimwise/platform/internal/policy"
	"github.com/claimwise/platform/internal/shared/auth"
	"github.com/claimwise/platform/internal/shared/errors"
	"github.com/claimwise/platform/internal/shared/events"
	"github.com/claimwise/platform/internal/shared/types"
	"github.com/go-chi/chi/v5"
)

// ClaimCounter reports how many active claims the user already has per
// (policy, category) pair in the current claim period. Implemented by
// the claim module's repository.
type ClaimCounter interface {
	CountActive(ctx context.Context, userID types.ID) (map[CoverageKey]int, error)
}

// Handler provides HTTP handlers for the recommendation module
type Handler struct {
	policies *policy.Repository
	counter  ClaimCounter
	engine   *Engine
	bus      *events.Bus
}

// NewHandler creates a new recommendation handler
func NewHandler(policies *policy.Repository, counter ClaimCounter, engine *Engine, bus *events.Bus) *Handler {
	return &Handler{policies: policies, counter: counter, engine: engine, bus: bus}
}

// Routes registers the recommendation routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Recommend)

	return r
}

// Recommend runs the full pipeline over the caller's active policies:
// match the situation, rank the matches, and build a coordinated claim
// plan. The plan is a proposal only; nothing is persisted until the
// user accepts it through the claim module.
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}

	var situation Situation
	if err := json.NewDecoder(r.Body).Decode(&situation); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	if err := situation.Validate(); err != nil {
		writeError(w, err)
		return
	}

	policies, err := h.policies.ListActiveByUser(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	existing := map[CoverageKey]int{}
	if h.counter != nil {
		existing, err = h.counter.CountActive(r.Context(), user.ID)
		if err != nil {
			writeError(w, err)
			return
		}
	}

	matches := h.engine.Match(Request{
		UserID:    user.ID,
		Policies:  policies,
		Situation: situation,
	})
	ranked := h.engine.Rank(matches)
	plan := h.engine.Optimize(ranked, situation.ClaimedAmount, existing)

	h.publish(r, events.TypePlanProposed, map[string]any{
		"user_id":               user.ID,
		"situation":             situation,
		"plan":                  plan,
		"total_expected_payout": plan.TotalExpectedPayout,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"matches": ranked,
		"plan":    plan,
	})
}

func (h *Handler) publish(r *http.Request, eventType string, data any) {
	if h.bus == nil {
		return
	}
	user := auth.UserFromContext(r.Context())
	event := events.NewEvent(eventType, "recommendation", data)
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
