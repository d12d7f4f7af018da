package http

import (
	"net/http"
	"time"

	"github.com/caic-labs/caic/internal/core/domain"
	"github.com/rs/zerolog/log"
)

type logCallRequest struct {
	AttemptID    string     `json:"attemptId"`
	Participants []string   `json:"participants"`
	Initiator    string     `json:"initiator"`
	CallType     string     `json:"callType"`
	Status       string     `json:"status"`
	StartTime    *time.Time `json:"startTime"`
	EndTime      *time.Time `json:"endTime"`
	Duration     int        `json:"duration"`
}

func (r logCallRequest) toEntry() (domain.CallHistoryEntry, error) {
	if len(r.Participants) != 2 || r.Initiator == "" || r.CallType == "" || r.Status == "" || r.StartTime == nil || r.AttemptID == "" {
		return domain.CallHistoryEntry{}, errMissingFields
	}
	switch domain.CallOutcome(r.Status) {
	case domain.OutcomeCompleted, domain.OutcomeMissed, domain.OutcomeDeclined, domain.OutcomeCancelled:
	default:
		return domain.CallHistoryEntry{}, errMissingFields
	}

	var participants [2]domain.AccountID
	for i, p := range r.Participants {
		id, err := domain.ParseAccountID(p)
		if err != nil {
			return domain.CallHistoryEntry{}, err
		}
		participants[i] = id
	}
	initiator, err := domain.ParseAccountID(r.Initiator)
	if err != nil {
		return domain.CallHistoryEntry{}, err
	}

	entry := domain.CallHistoryEntry{
		AttemptID:    r.AttemptID,
		Participants: participants,
		Initiator:    initiator,
		CallType:     domain.CallType(r.CallType),
		Status:       domain.CallOutcome(r.Status),
		StartTime:    *r.StartTime,
		DurationSec:  max(0, r.Duration),
	}
	if r.EndTime != nil {
		entry.EndTime = *r.EndTime
	}
	return entry, nil
}

func (h *Handler) handleLogCall(w http.ResponseWriter, r *http.Request) {
	var req logCallRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	entry, err := req.toEntry()
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing required fields for call log")
		return
	}
	if err := h.history.Append(r.Context(), entry); err != nil {
		log.Error().Err(err).Str("attempt", entry.AttemptID).Msg("Failed to append call history")
		respondError(w, http.StatusInternalServerError, "server error")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"message": "call logged"})
}

type participantView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

type callHistoryView struct {
	AttemptID    string             `json:"attemptId"`
	Participants [2]participantView `json:"participants"`
	Initiator    participantView    `json:"initiator"`
	CallType     string             `json:"callType"`
	Status       string             `json:"status"`
	StartTime    time.Time          `json:"startTime"`
	EndTime      *time.Time         `json:"endTime,omitempty"`
	Duration     int                `json:"duration"`
}

// handleCallHistory returns the authenticated account's call log, most
// recent first, with participants resolved to display names.
func (h *Handler) handleCallHistory(w http.ResponseWriter, r *http.Request) {
	account, _ := accountFrom(r.Context())

	entries, err := h.history.ByParticipant(r.Context(), account.ID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query call history")
		respondError(w, http.StatusInternalServerError, "server error")
		return
	}

	resolved := make(map[domain.AccountID]participantView)
	view := func(id domain.AccountID) participantView {
		if v, ok := resolved[id]; ok {
			return v
		}
		v := participantView{ID: id.String()}
		if acc, err := h.dir.ResolveAccount(r.Context(), id); err == nil {
			v.Username = acc.Username
			v.Email = acc.Email
		}
		resolved[id] = v
		return v
	}

	out := make([]callHistoryView, 0, len(entries))
	for _, e := range entries {
		item := callHistoryView{
			AttemptID:    e.AttemptID,
			Participants: [2]participantView{view(e.Participants[0]), view(e.Participants[1])},
			Initiator:    view(e.Initiator),
			CallType:     string(e.CallType),
			Status:       string(e.Status),
			StartTime:    e.StartTime,
			Duration:     e.DurationSec,
		}
		if !e.EndTime.IsZero() {
			end := e.EndTime
			item.EndTime = &end
		}
		out = append(out, item)
	}
	respondJSON(w, http.StatusOK, out)
}
