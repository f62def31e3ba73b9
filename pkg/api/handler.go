package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/resumeforge/cvgate/pkg/cvgate"
)

const maxUserIDLen = 255

// Handler provides HTTP endpoints for quota and document-access
// inspection. All endpoints are read-only; nothing here consumes quota.
type Handler struct {
	config Config
}

// GetUsage returns a standardized JSON response of the user's current
// quota standing
func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	gate := h.config.Gate
	plan, err := gate.Resolver().Resolve(ctx, userID)
	if err != nil {
		h.handleError(w, r, err, http.StatusInternalServerError)
		return
	}

	report, err := gate.CurrentUsage(ctx, userID)
	if err != nil {
		h.handleError(w, r, err, http.StatusInternalServerError)
		return
	}

	counter, err := gate.Counter().Get(ctx, userID, report.Day)
	if err != nil {
		h.handleError(w, r, err, http.StatusInternalServerError)
		return
	}

	summary, err := gate.DocumentAccessSummary(ctx, userID)
	if err != nil {
		h.handleError(w, r, err, http.StatusInternalServerError)
		return
	}

	byCategory := make(map[string]int, len(counter.ByCategory))
	for category, count := range counter.ByCategory {
		byCategory[string(category)] = count
	}

	h.respond(w, UsageResponse{
		UserID: userID,
		Plan: PlanInfo{
			Name:        plan.Plan.Name,
			DisplayName: plan.Plan.DisplayName,
			Subscribed:  plan.Subscribed,
			TopTier:     plan.Plan.TopTier,
		},
		Day: report.Day.Key(),
		Calls: CallUsage{
			Used:       report.CallsUsed,
			Limit:      report.CallsLimit,
			Remaining:  report.CallsRemaining,
			ByCategory: byCategory,
		},
		Docs: DocumentUsage{
			Total:         summary.Total,
			EditableCount: summary.EditableCount,
			ReadOnlyCount: summary.ReadOnlyCount,
			Limit:         summary.Limit,
			OverLimit:     summary.OverLimit,
			CanCreateNew:  summary.CanCreateNew,
		},
	})
}

// GetPlans returns the active plan catalog, cheapest first
func (h *Handler) GetPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.config.Gate.Resolver().Catalog().ListActive(r.Context())
	if err != nil {
		h.handleError(w, r, err, http.StatusInternalServerError)
		return
	}

	out := make([]PlanResponse, 0, len(plans))
	for _, plan := range plans {
		out = append(out, PlanResponse{
			Name:                 plan.Name,
			DisplayName:          plan.DisplayName,
			DailyCallQuota:       plan.DailyCallQuota,
			MaxEditableDocuments: plan.MaxEditableDocuments,
			MonthlyPricePennies:  plan.MonthlyPricePennies,
			YearlyPricePennies:   plan.YearlyPricePennies,
			TopTier:              plan.TopTier,
		})
	}
	h.respond(w, out)
}

// GetDocuments returns the user's documents with their rank and
// editability under the current plan, newest first
func (h *Handler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	ranked, err := h.config.Gate.Ranker().RankAll(r.Context(), userID)
	if err != nil {
		h.handleError(w, r, err, http.StatusInternalServerError)
		return
	}

	out := make([]DocumentResponse, 0, len(ranked))
	for _, doc := range ranked {
		out = append(out, DocumentResponse{
			ID:        doc.ID,
			Position:  doc.Position,
			Editable:  doc.Editable,
			CreatedAt: doc.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	h.respond(w, out)
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := h.config.GetUserID(r)
	if userID == "" {
		h.handleError(w, r, fmt.Errorf("user ID not found"), http.StatusUnauthorized)
		return "", false
	}
	if len(userID) > maxUserIDLen {
		h.handleError(w, r, fmt.Errorf("invalid user ID format"), http.StatusBadRequest)
		return "", false
	}
	return userID, true
}

func (h *Handler) respond(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	if h.config.OnError != nil {
		h.config.OnError(w, r, err)
		return
	}

	if errors.Is(err, cvgate.ErrSubscriptionConflict) {
		statusCode = http.StatusConflict
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": http.StatusText(statusCode),
	})
}
