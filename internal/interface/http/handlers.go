package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/quizhub/streak-engine/config"
	"github.com/quizhub/streak-engine/internal/application/command"
	"github.com/quizhub/streak-engine/internal/application/query"
	"github.com/quizhub/streak-engine/internal/domain/milestone"
	"github.com/quizhub/streak-engine/internal/domain/shared"
	"github.com/quizhub/streak-engine/internal/domain/streak"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	type targetStatus struct {
		Healthy bool   `json:"healthy"`
		Error   string `json:"error,omitempty"`
	}

	healthy := true
	targets := make(map[string]targetStatus, len(s.deps.HealthTargets))
	for name, checker := range s.deps.HealthTargets {
		if err := checker.Ping(r.Context()); err != nil {
			healthy = false
			targets[name] = targetStatus{Healthy: false, Error: err.Error()}
			continue
		}
		targets[name] = targetStatus{Healthy: true}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"healthy": healthy,
		"targets": targets,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT INGESTION
// ══════════════════════════════════════════════════════════════════════════════

type activityEventRequest struct {
	UserID     int64     `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at,omitempty"`

	// Optional; updates the user's stored offset for day-boundary math.
	UTCOffsetMinutes *int `json:"utc_offset_minutes,omitempty"`
}

func (s *Server) handleActivityEvent(w http.ResponseWriter, r *http.Request) {
	var req activityEventRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.deps.RecordActivity.Handle(r.Context(), command.RecordActivityCommand{
		UserID:           shared.UserID(req.UserID),
		OccurredAt:       req.OccurredAt,
		UTCOffsetMinutes: req.UTCOffsetMinutes,
		CorrelationID:    requestIDFrom(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"snapshot":     result.Snapshot,
		"outcome":      dailyOutcomeName(result.Outcome),
		"freezes_used": result.FreezesUsed,
		"streak_lost":  result.StreakLost,
		"lost_value":   result.LostValue,
		"milestones":   milestoneViews(result.Milestones),
	})
}

type answerEventRequest struct {
	UserID     int64     `json:"user_id"`
	IsCorrect  bool      `json:"is_correct"`
	OccurredAt time.Time `json:"occurred_at,omitempty"`
}

func (s *Server) handleAnswerEvent(w http.ResponseWriter, r *http.Request) {
	var req answerEventRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.deps.RecordAnswer.Handle(r.Context(), command.RecordAnswerCommand{
		UserID:        shared.UserID(req.UserID),
		IsCorrect:     req.IsCorrect,
		OccurredAt:    req.OccurredAt,
		CorrelationID: requestIDFrom(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"snapshot":        result.Snapshot,
		"outcome":         answerOutcomeName(result.Outcome),
		"shield_consumed": result.ShieldConsumed,
		"lost_value":      result.LostValue,
		"milestones":      milestoneViews(result.Milestones),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// CONFIRMED PURCHASES
// ══════════════════════════════════════════════════════════════════════════════

type itemPurchaseRequest struct {
	UserID     int64     `json:"user_id"`
	Kind       string    `json:"kind"`
	Quantity   int       `json:"quantity"`
	AmountPaid int       `json:"amount_paid"`
	OccurredAt time.Time `json:"occurred_at,omitempty"`
}

func (s *Server) handleItemPurchase(w http.ResponseWriter, r *http.Request) {
	var req itemPurchaseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !s.featureEnabled(config.FeatureShopPurchases, req.UserID) {
		writeError(w, http.StatusForbidden, "feature_disabled", "item purchases are currently disabled")
		return
	}

	result, err := s.deps.GrantItem.Handle(r.Context(), command.GrantItemCommand{
		UserID:        shared.UserID(req.UserID),
		Kind:          streak.ItemKind(req.Kind),
		Quantity:      req.Quantity,
		AmountPaid:    shared.Price(req.AmountPaid),
		OccurredAt:    req.OccurredAt,
		CorrelationID: requestIDFrom(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"snapshot":  result.Snapshot,
		"new_total": result.NewTotal,
	})
}

type repairPurchaseRequest struct {
	UserID     int64     `json:"user_id"`
	AmountPaid int       `json:"amount_paid"`
	OccurredAt time.Time `json:"occurred_at,omitempty"`
}

func (s *Server) handleRepairPurchase(w http.ResponseWriter, r *http.Request) {
	var req repairPurchaseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !s.featureEnabled(config.FeatureShopRepair, req.UserID) {
		writeError(w, http.StatusForbidden, "feature_disabled", "streak repair is currently disabled")
		return
	}

	result, err := s.deps.ApplyRepair.Handle(r.Context(), command.ApplyRepairCommand{
		UserID:        shared.UserID(req.UserID),
		AmountPaid:    shared.Price(req.AmountPaid),
		OccurredAt:    req.OccurredAt,
		CorrelationID: requestIDFrom(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"snapshot": result.Snapshot,
		"restored": result.Restored,
		"price":    result.Price,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// READS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	snap, err := s.deps.Snapshot.Handle(r.Context(), query.SnapshotQuery{UserID: userID})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleGetRepairQuote(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	quote, err := s.deps.RepairQuote.Handle(r.Context(), query.RepairQuoteQuery{UserID: userID})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *Server) handleGetMilestones(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	records, err := s.deps.Milestones.Handle(r.Context(), query.MilestonesQuery{UserID: userID})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	views := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		views = append(views, map[string]interface{}{
			"type":        rec.Type.String(),
			"value":       rec.Value,
			"achieved_at": rec.AchievedAt,
			"reward":      rec.RewardDescriptor,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"milestones": views})
}

func (s *Server) handleGetProtectionHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	entries, err := s.deps.ProtectionHistory.Handle(r.Context(), query.ProtectionHistoryQuery{
		UserID: userID,
		Limit:  limit,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	views := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		views = append(views, map[string]interface{}{
			"id":                 e.ID,
			"kind":               e.Kind.String(),
			"quantity":           e.Quantity,
			"streak_value_saved": e.StreakValueSaved,
			"amount":             e.Amount.Int(),
			"reason":             string(e.Reason),
			"created_at":         e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": views})
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func decodeBody(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return false
	}
	return true
}

func pathUserID(w http.ResponseWriter, r *http.Request) (shared.UserID, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_user_id", "user ID must be a positive integer")
		return 0, false
	}
	return shared.UserID(id), true
}

// featureEnabled treats a nil flag set as "everything on".
func (s *Server) featureEnabled(name string, userID int64) bool {
	if s.deps.Flags == nil {
		return true
	}
	return s.deps.Flags.IsEnabled(name, userID)
}

// writeDomainError maps domain errors to HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case shared.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case shared.IsNotEligible(err):
		writeError(w, http.StatusConflict, "not_eligible", err.Error())
	case shared.IsInvariantViolation(err):
		writeError(w, http.StatusUnprocessableEntity, "invariant_violation", err.Error())
	case shared.IsRetryable(err):
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "try again shortly")
	case errors.Is(err, shared.ErrInvalidID), errors.Is(err, shared.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
	}
}

func dailyOutcomeName(o streak.DailyOutcome) string {
	switch o {
	case streak.DailyReentry:
		return "reentry"
	case streak.DailyStarted:
		return "started"
	case streak.DailyContinued:
		return "continued"
	case streak.DailyFrozen:
		return "frozen"
	case streak.DailyLost:
		return "lost"
	default:
		return "unknown"
	}
}

func answerOutcomeName(o streak.AnswerOutcome) string {
	switch o {
	case streak.AnswerExtended:
		return "extended"
	case streak.AnswerShielded:
		return "shielded"
	case streak.AnswerReset:
		return "reset"
	default:
		return "unknown"
	}
}

func milestoneViews(grants []milestone.Grant) []map[string]interface{} {
	views := make([]map[string]interface{}, 0, len(grants))
	for _, g := range grants {
		views = append(views, map[string]interface{}{
			"type":   g.Record.Type.String(),
			"value":  g.Record.Value,
			"reward": g.Record.RewardDescriptor,
		})
	}
	return views
}
