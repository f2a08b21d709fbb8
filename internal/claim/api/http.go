package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/claimwise/platform/internal/claim/domain"
	"github.com/claimwise/platform/internal/recommendation"
	"github.com/claimwise/platform/internal/shared/auth"
	"github.com/claimwise/platform/internal/shared/errors"
	"github.com/claimwise/platform/internal/shared/events"
	"github.com/claimwise/platform/internal/shared/metrics"
	"github.com/claimwise/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the claim module
type Handler struct {
	repo domain.Repository
	bus  *events.Bus
}

// NewHandler creates a new claim handler
func NewHandler(repo domain.Repository, bus *events.Bus) *Handler {
	return &Handler{repo: repo, bus: bus}
}

// Routes registers the claim routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListClaims)
	r.Post("/accept-plan", h.AcceptPlan)

	r.Route("/{claimID}", func(r chi.Router) {
		r.Get("/", h.GetClaim)
		r.Get("/history", h.GetHistory)

		// Status transitions
		r.Post("/submit", h.SubmitClaim)
		r.Post("/review", h.StartReview)
		r.Post("/approve", h.ApproveClaim)
		r.Post("/reject", h.RejectClaim)
		r.Post("/withdraw", h.WithdrawClaim)
		r.Post("/close", h.CloseClaim)
	})

	return r
}

// --- Request types ---

type AcceptPlanRequest struct {
	ClaimedAmount float64                       `json:"claimed_amount"`
	Claims        []recommendation.PlannedClaim `json:"claims"`
}

type TransitionRequest struct {
	// ExpectedVersion guards against concurrent updates; zero means the
	// version the handler just read
	ExpectedVersion int64  `json:"expected_version,omitempty"`
	Note            string `json:"note,omitempty"`
	// InsurerRef is the reference the carrier assigned when the claim
	// was filed. Submitting with it set attaches it to the claim, which
	// is what lets adapter status updates correlate back later.
	InsurerRef string `json:"insurer_ref,omitempty"`
}

type ApproveRequest struct {
	ExpectedVersion int64   `json:"expected_version,omitempty"`
	Amount          float64 `json:"amount"`
}

// --- Handlers ---

// AcceptPlan turns an accepted claim plan into tracked draft claims,
// one per planned claim, preserving the plan's filing sequence in
// creation order
func (h *Handler) AcceptPlan(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}

	var req AcceptPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	if len(req.Claims) == 0 {
		writeError(w, errors.Validation("empty plan", map[string]string{
			"claims": "at least one planned claim is required",
		}))
		return
	}

	created := make([]*domain.Claim, 0, len(req.Claims))
	for _, planned := range req.Claims {
		c, err := domain.NewClaim(
			user.ID, planned.PolicyID, planned.CoverageItemID,
			planned.PolicyNumber, planned.Insurer, planned.Category,
			req.ClaimedAmount, planned.ExpectedPayout,
		)
		if err != nil {
			writeError(w, errors.BadRequest(err.Error()))
			return
		}

		if err := h.repo.Save(r.Context(), c); err != nil {
			writeError(w, err)
			return
		}

		metrics.RecordClaimCreated()
		h.publishEvents(r.Context(), user, c)
		created = append(created, c)
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"data":  created,
		"total": len(created),
	})
}

// ListClaims lists the caller's claims
func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}

	filter := domain.ListFilter{Category: r.URL.Query().Get("category")}
	if s := r.URL.Query().Get("status"); s != "" {
		status := domain.ClaimStatus(s)
		filter.Status = &status
	}
	if p := r.URL.Query().Get("policy_id"); p != "" {
		id, err := types.ParseID(p)
		if err != nil {
			writeError(w, errors.BadRequest("invalid policy ID"))
			return
		}
		filter.PolicyID = &id
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		filter.Limit, _ = strconv.Atoi(l)
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		filter.Offset, _ = strconv.Atoi(o)
	}

	claims, total, err := h.repo.List(r.Context(), user.ID, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  claims,
		"total": total,
	})
}

// GetClaim gets one claim with its status history
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	c, _ := h.getClaimAndUser(w, r)
	if c == nil {
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// GetHistory returns the claim's append-only status history
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	c, _ := h.getClaimAndUser(w, r)
	if c == nil {
		return
	}

	history, err := h.repo.GetHistory(r.Context(), c.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  history,
		"total": len(history),
	})
}

// SubmitClaim files the draft claim with the insurer. When the filing
// channel returned a carrier reference it is attached here so insurer
// sync can correlate status updates.
func (h *Handler) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(c *domain.Claim, user *auth.User, req TransitionRequest) error {
		if err := c.Submit(actorTag(user)); err != nil {
			return err
		}
		if req.InsurerRef != "" {
			return c.AssignInsurerRef(req.InsurerRef)
		}
		return nil
	})
}

// StartReview records that the insurer has begun reviewing the claim
func (h *Handler) StartReview(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(c *domain.Claim, user *auth.User, req TransitionRequest) error {
		return c.StartReview(actorTag(user))
	})
}

// ApproveClaim records approval with the approved amount
func (h *Handler) ApproveClaim(w http.ResponseWriter, r *http.Request) {
	c, user := h.getClaimAndUser(w, r)
	if c == nil {
		return
	}

	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if err := c.Approve(actorTag(user), req.Amount); err != nil {
		metrics.RecordClaimTransitionConflict()
		writeError(w, err)
		return
	}

	h.persistTransition(w, r, c, user, req.ExpectedVersion)
}

// RejectClaim records the insurer's rejection
func (h *Handler) RejectClaim(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(c *domain.Claim, user *auth.User, req TransitionRequest) error {
		return c.Reject(actorTag(user), req.Note)
	})
}

// WithdrawClaim retracts a submitted or under-review claim
func (h *Handler) WithdrawClaim(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(c *domain.Claim, user *auth.User, req TransitionRequest) error {
		return c.Withdraw(actorTag(user), req.Note)
	})
}

// CloseClaim settles an approved claim
func (h *Handler) CloseClaim(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(c *domain.Claim, user *auth.User, req TransitionRequest) error {
		return c.Close(actorTag(user))
	})
}

// --- Helpers ---

func (h *Handler) transition(
	w http.ResponseWriter, r *http.Request,
	move func(c *domain.Claim, user *auth.User, req TransitionRequest) error,
) {
	c, user := h.getClaimAndUser(w, r)
	if c == nil {
		return
	}

	var req TransitionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, errors.BadRequest("invalid request body"))
			return
		}
	}

	from := c.Status
	if err := move(c, user, req); err != nil {
		metrics.RecordClaimTransitionConflict()
		writeError(w, err)
		return
	}
	metrics.RecordClaimTransition(string(from), string(c.Status))

	h.persistTransition(w, r, c, user, req.ExpectedVersion)
}

func (h *Handler) persistTransition(
	w http.ResponseWriter, r *http.Request,
	c *domain.Claim, user *auth.User, expectedVersion int64,
) {
	if expectedVersion == 0 {
		expectedVersion = c.Version
	}

	if err := h.repo.Update(r.Context(), c, expectedVersion); err != nil {
		writeError(w, err)
		return
	}

	h.publishEvents(r.Context(), user, c)
	writeJSON(w, http.StatusOK, c)
}

// getClaimAndUser loads the claim and enforces ownership. Users holding
// the adjuster role can act on any claim.
func (h *Handler) getClaimAndUser(w http.ResponseWriter, r *http.Request) (*domain.Claim, *auth.User) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return nil, nil
	}

	id, err := types.ParseID(chi.URLParam(r, "claimID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid claim ID"))
		return nil, nil
	}

	c, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return nil, nil
	}

	if c.UserID != user.ID && !user.HasRole("adjuster") {
		writeError(w, errors.NotFound("claim", id.String()))
		return nil, nil
	}

	return c, user
}

func (h *Handler) publishEvents(ctx context.Context, user *auth.User, c *domain.Claim) {
	if h.bus == nil {
		c.GetDomainEvents()
		return
	}

	for _, de := range c.GetDomainEvents() {
		event := events.NewEvent(de.Type, "claim", de).WithActor(user.ID, "user")
		// Best-effort: event delivery must not fail the request
		_ = h.bus.Publish(ctx, event)
	}
}

func actorTag(user *auth.User) string {
	if user.HasRole("adjuster") {
		return "adjuster:" + user.ID.String()
	}
	return "user:" + user.ID.String()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	if appErr, ok := err.(*errors.AppError); ok {
		writeJSON(w, appErr.HTTPStatus, appErr)
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "internal server error"})
}
