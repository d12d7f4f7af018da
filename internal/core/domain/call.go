package domain

import (
	"errors"
	"time"
)

type CallType string

const (
	CallAudio CallType = "audio"
	CallVideo CallType = "video"
)

// CallStatus is the status field of the shared CallRequest record. Only
// two values ever appear in the store; declined, cancelled and missed
// are derived outcomes, never stored statuses.
type CallStatus string

const (
	CallPending  CallStatus = "pending"
	CallAccepted CallStatus = "accepted"
)

// CallRequest is the ephemeral shared record coordinating one call
// attempt. An identical copy lives at both participants' store keys;
// the record is the sole coordination signal between the two sides.
type CallRequest struct {
	CallerID          ChatID     `json:"callerId"`
	CallerAccountID   AccountID  `json:"callerAccountId"`
	CallerName        string     `json:"callerName"`
	ReceiverID        ChatID     `json:"receiverId"`
	ReceiverAccountID AccountID  `json:"receiverAccountId"`
	Status            CallStatus `json:"status"`
	RoomName          string     `json:"roomName"`
	CallType          CallType   `json:"callType"`
	// TimestampMS is the call-initiation time in Unix milliseconds.
	TimestampMS int64 `json:"timestamp"`
}

func (r CallRequest) StartTime() time.Time {
	return time.UnixMilli(r.TimestampMS)
}

// CallPhase is the local coordinator phase, deliberately separate from
// the stored CallStatus: the store never carries the local view.
type CallPhase string

const (
	PhaseIdle CallPhase = "idle"
	// PhaseAwaitingAnswer: we initiated and the record is still pending.
	PhaseAwaitingAnswer CallPhase = "awaiting_answer"
	// PhaseAwaitingJoin: an inbound pending request is ringing locally.
	PhaseAwaitingJoin CallPhase = "awaiting_join"
	PhaseInCall       CallPhase = "in_call"
)

// CallOutcome is the terminal classification of a call attempt. Exactly
// one outcome is reached per attempt and it is immutable once logged.
type CallOutcome string

const (
	OutcomeCompleted CallOutcome = "completed"
	OutcomeMissed    CallOutcome = "missed"
	OutcomeDeclined  CallOutcome = "declined"
	OutcomeCancelled CallOutcome = "cancelled"
)

// CallTrigger identifies which event is tearing the attempt down.
type CallTrigger string

const (
	// TriggerEnd: the local participant ended or aborted the call.
	TriggerEnd CallTrigger = "end"
	// TriggerDecline: the receiver rejected a ringing request.
	TriggerDecline CallTrigger = "decline"
	// TriggerVanished: a previously observed pending record disappeared
	// from our key without ever flipping to accepted.
	TriggerVanished CallTrigger = "vanished"
)

var ErrUnclassifiable = errors.New("call state does not map to a terminal outcome")

// ClassifyOutcome maps the record status at teardown time plus the
// teardown trigger to the terminal outcome written to history.
func ClassifyOutcome(status CallStatus, trigger CallTrigger) (CallOutcome, error) {
	switch {
	case status == CallAccepted:
		return OutcomeCompleted, nil
	case status == CallPending && trigger == TriggerEnd:
		return OutcomeCancelled, nil
	case status == CallPending && trigger == TriggerDecline:
		return OutcomeDeclined, nil
	case status == CallPending && trigger == TriggerVanished:
		return OutcomeMissed, nil
	}
	return "", ErrUnclassifiable
}

// CallDuration returns whole seconds between start and end, clamped at
// zero. Non-completed outcomes always report zero.
func CallDuration(outcome CallOutcome, start, end time.Time) int {
	if outcome != OutcomeCompleted {
		return 0
	}
	secs := int(end.Sub(start).Round(time.Second) / time.Second)
	if secs < 0 {
		return 0
	}
	return secs
}

// CallHistoryEntry is the durable, append-only record of a terminated
// call attempt.
type CallHistoryEntry struct {
	// AttemptID is the room name of the attempt. The history log is
	// idempotent per attempt: both sides of a withdrawn call race to
	// log a terminal outcome and the first write wins.
	AttemptID    string       `json:"attemptId"`
	Participants [2]AccountID `json:"participants"`
	Initiator    AccountID    `json:"initiator"`
	CallType     CallType     `json:"callType"`
	Status       CallOutcome  `json:"status"`
	StartTime    time.Time    `json:"startTime"`
	EndTime      time.Time    `json:"endTime,omitempty"`
	// DurationSec is whole seconds, zero whenever the call never connected.
	DurationSec int `json:"duration"`
}

// NewHistoryEntry builds the history record for a terminated attempt.
func NewHistoryEntry(req CallRequest, outcome CallOutcome, end time.Time) CallHistoryEntry {
	start := req.StartTime()
	return CallHistoryEntry{
		AttemptID:    req.RoomName,
		Participants: [2]AccountID{req.CallerAccountID, req.ReceiverAccountID},
		Initiator:    req.CallerAccountID,
		CallType:     req.CallType,
		Status:       outcome,
		StartTime:    start,
		EndTime:      end,
		DurationSec:  CallDuration(outcome, start, end),
	}
}

// Involves reports whether the given account took part in the call.
func (e CallHistoryEntry) Involves(id AccountID) bool {
	return e.Participants[0] == id || e.Participants[1] == id
}
