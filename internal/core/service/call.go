package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/caic-labs/caic/internal/core/domain"
	"github.com/caic-labs/caic/internal/core/port"
	"github.com/rs/zerolog/log"
)

var (
	ErrCallInProgress = errors.New("a call attempt is already in progress")
	ErrNoIncomingCall = errors.New("no incoming call to answer")
	ErrNotRunning     = errors.New("call session is not running")
)

const callRequestsPath = "CallRequests"

func callKey(id domain.ChatID) string {
	return callRequestsPath + "/" + id.String()
}

// Notifier pushes an entry onto a participant's notification feed.
type Notifier interface {
	Push(ctx context.Context, to domain.ChatID, n domain.Notification) (string, error)
}

// CallSession coordinates call attempts for one authenticated
// participant. The only channel between the two sides is the pair of
// CallRequest records in the realtime store: every transition that
// advances or tears down an attempt writes both keys in the same
// logical step, without any transactional guarantee across them. The
// session is created on login and stopped on logout.
type CallSession struct {
	store   port.RealtimeStore
	dir     port.AccountDirectory
	history port.HistoryLog
	media   port.MediaTransport
	tokens  port.TokenIssuer
	notify  Notifier

	self     domain.Account
	now      func() time.Time
	tokenTTL time.Duration

	mu      sync.Mutex
	phase   domain.CallPhase
	current *domain.CallRequest
	room    port.RoomSession

	incoming  chan domain.CallRequest
	cancelSub func()
	done      chan struct{}
	started   bool
}

type CallSessionOption func(*CallSession)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) CallSessionOption {
	return func(s *CallSession) { s.now = now }
}

// WithNotifier enables missed-call entries on the local feed.
func WithNotifier(n Notifier) CallSessionOption {
	return func(s *CallSession) { s.notify = n }
}

func WithTokenTTL(ttl time.Duration) CallSessionOption {
	return func(s *CallSession) { s.tokenTTL = ttl }
}

func NewCallSession(
	self domain.Account,
	store port.RealtimeStore,
	dir port.AccountDirectory,
	history port.HistoryLog,
	media port.MediaTransport,
	tokens port.TokenIssuer,
	opts ...CallSessionOption,
) *CallSession {
	s := &CallSession{
		store:    store,
		dir:      dir,
		history:  history,
		media:    media,
		tokens:   tokens,
		self:     self,
		now:      time.Now,
		tokenTTL: time.Hour,
		phase:    domain.PhaseIdle,
		incoming: make(chan domain.CallRequest, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start subscribes to the participant's own call-request key and begins
// driving the state machine from its change notifications.
func (s *CallSession) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("call session already started")
	}

	snaps, cancel, err := s.store.Subscribe(ctx, callKey(s.self.ChatID))
	if err != nil {
		return fmt.Errorf("subscribe call requests: %w", err)
	}
	s.cancelSub = cancel
	s.done = make(chan struct{})
	s.started = true

	go s.watch(ctx, snaps)

	log.Info().Str("uid", s.self.ChatID.String()).Msg("Call session started")
	return nil
}

// Stop tears the session down: the subscription is cancelled, any live
// media session is left, and local state resets. No history is written
// for an attempt still pending at stop time; the counterpart record is
// left dangling exactly as when a client crashes.
func (s *CallSession) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancelSub
	done := s.done
	s.leaveRoomLocked()
	s.phase = domain.PhaseIdle
	s.current = nil
	s.mu.Unlock()

	cancel()
	<-done
	log.Info().Str("uid", s.self.ChatID.String()).Msg("Call session stopped")
}

// Incoming surfaces ringing call requests to the application layer. The
// channel holds the most recent pending request only: a second inbound
// call overwrites an unconsumed first one, mirroring the store-level
// overwrite of the record itself.
func (s *CallSession) Incoming() <-chan domain.CallRequest {
	return s.incoming
}

func (s *CallSession) Phase() domain.CallPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// CurrentRoom returns the media room of the live call, or "".
func (s *CallSession) CurrentRoom() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return ""
	}
	return s.room.Room()
}

// StartCall initiates a call attempt to the target participant. The
// target is resolved in the account directory first; on resolution
// failure nothing is written. The identical pending record is then
// written at the receiver's key and at our own key, in that order.
func (s *CallSession) StartCall(ctx context.Context, target domain.ChatID, callType domain.CallType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrNotRunning
	}
	if s.phase != domain.PhaseIdle {
		return ErrCallInProgress
	}

	receiver, err := s.dir.ResolveChatID(ctx, target)
	if err != nil {
		return fmt.Errorf("resolve call target %s: %w", target, err)
	}

	req := domain.CallRequest{
		CallerID:          s.self.ChatID,
		CallerAccountID:   s.self.ID,
		CallerName:        s.self.Username,
		ReceiverID:        receiver.ChatID,
		ReceiverAccountID: receiver.ID,
		Status:            domain.CallPending,
		RoomName:          domain.NewRoomName(),
		CallType:          callType,
		TimestampMS:       s.now().UnixMilli(),
	}

	if err := s.store.Set(ctx, callKey(receiver.ChatID), req); err != nil {
		return fmt.Errorf("write call request at receiver key: %w", err)
	}
	if err := s.store.Set(ctx, callKey(s.self.ChatID), req); err != nil {
		// The receiver key already carries the record; recovery is a
		// fresh pending overwrite or a manual EndCall.
		return fmt.Errorf("write call request at caller key: %w", err)
	}

	s.phase = domain.PhaseAwaitingAnswer
	s.current = &req
	log.Info().
		Str("room", req.RoomName).
		Str("receiver", receiver.ChatID.String()).
		Str("call_type", string(callType)).
		Msg("Call started")
	return nil
}

// AcceptCall answers the currently ringing request: both records flip
// to accepted and the media room from the record is joined.
func (s *CallSession) AcceptCall(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != domain.PhaseAwaitingJoin || s.current == nil {
		return ErrNoIncomingCall
	}
	req := *s.current

	accepted := map[string]any{"status": string(domain.CallAccepted)}
	if err := s.store.Update(ctx, callKey(req.CallerID), accepted); err != nil {
		return fmt.Errorf("accept call at caller key: %w", err)
	}
	if err := s.store.Update(ctx, callKey(s.self.ChatID), accepted); err != nil {
		return fmt.Errorf("accept call at own key: %w", err)
	}

	req.Status = domain.CallAccepted
	if err := s.joinRoomLocked(ctx, req); err != nil {
		return err
	}
	return nil
}

// DeclineCall rejects the ringing request: the declined outcome is
// logged and both records are removed.
func (s *CallSession) DeclineCall(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != domain.PhaseAwaitingJoin || s.current == nil {
		return ErrNoIncomingCall
	}
	req := *s.current

	s.logOutcome(ctx, req, domain.TriggerDecline)

	if err := s.store.Remove(ctx, callKey(req.CallerID)); err != nil {
		return fmt.Errorf("remove call request at caller key: %w", err)
	}
	if err := s.store.Remove(ctx, callKey(s.self.ChatID)); err != nil {
		return fmt.Errorf("remove call request at own key: %w", err)
	}

	s.phase = domain.PhaseIdle
	s.current = nil
	s.drainIncoming()
	return nil
}

// EndCall terminates the attempt from this side: hanging up a live call
// or aborting one still pending. The record at our own key decides the
// outcome: still pending means we withdrew (cancelled), accepted means
// the call connected (completed). With no record left there is nothing
// to log; the other side already terminated the attempt.
func (s *CallSession) EndCall(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrNotRunning
	}

	snap, err := s.store.Get(ctx, callKey(s.self.ChatID))
	if err != nil && !errors.Is(err, port.ErrNotFound) {
		return fmt.Errorf("read own call request: %w", err)
	}

	if err == nil && snap.Exists {
		var req domain.CallRequest
		if decodeErr := snap.Decode(&req); decodeErr != nil {
			return fmt.Errorf("decode own call request: %w", decodeErr)
		}

		s.logOutcome(ctx, req, domain.TriggerEnd)

		if req.CallerID != "" {
			if err := s.store.Remove(ctx, callKey(req.CallerID)); err != nil {
				return fmt.Errorf("remove call request at caller key: %w", err)
			}
		}
		if req.ReceiverID != "" {
			if err := s.store.Remove(ctx, callKey(req.ReceiverID)); err != nil {
				return fmt.Errorf("remove call request at receiver key: %w", err)
			}
		}
	}

	s.leaveRoomLocked()
	s.phase = domain.PhaseIdle
	s.current = nil
	s.drainIncoming()
	return nil
}

// watch consumes change notifications for our own key. Delivery order
// relative to local mutations is not guaranteed, so every snapshot is
// checked against the current phase and dropped as a no-op when it no
// longer matches a valid transition.
func (s *CallSession) watch(ctx context.Context, snaps <-chan port.Snapshot) {
	defer close(s.done)
	for snap := range snaps {
		s.handleSnapshot(ctx, snap)
	}
}

func (s *CallSession) handleSnapshot(ctx context.Context, snap port.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	if !snap.Exists {
		s.handleRemovedLocked(ctx)
		return
	}

	var req domain.CallRequest
	if err := snap.Decode(&req); err != nil {
		log.Error().Err(err).Str("path", snap.Path).Msg("Undecodable call request snapshot")
		return
	}

	switch req.Status {
	case domain.CallPending:
		if req.CallerID == s.self.ChatID {
			// Echo of our own outgoing write.
			return
		}
		if s.phase != domain.PhaseIdle && s.phase != domain.PhaseAwaitingJoin {
			// Busy. The store record was already overwritten by the new
			// caller; locally we stay with the attempt in progress.
			log.Warn().Str("caller", req.CallerID.String()).Msg("Inbound call while busy, ignoring")
			return
		}
		s.phase = domain.PhaseAwaitingJoin
		s.current = &req
		s.drainIncoming()
		s.incoming <- req
		log.Info().Str("caller", req.CallerID.String()).Str("room", req.RoomName).Msg("Incoming call")

	case domain.CallAccepted:
		if s.phase != domain.PhaseAwaitingAnswer && s.phase != domain.PhaseAwaitingJoin {
			return
		}
		if err := s.joinRoomLocked(ctx, req); err != nil {
			log.Error().Err(err).Str("room", req.RoomName).Msg("Failed to join media room")
		}

	default:
		log.Warn().Str("status", string(req.Status)).Msg("Unknown call request status, ignoring")
	}
}

// handleRemovedLocked reacts to our own record vanishing. If we were
// still looking at a pending inbound request, the caller withdrew
// before any response: that is the missed call. Any other phase means
// the other side terminated an attempt it already logged.
func (s *CallSession) handleRemovedLocked(ctx context.Context) {
	switch s.phase {
	case domain.PhaseAwaitingJoin:
		if s.current != nil && s.current.Status == domain.CallPending {
			req := *s.current
			s.logOutcome(ctx, req, domain.TriggerVanished)
			s.pushMissedNotice(ctx, req)
		}
	case domain.PhaseAwaitingAnswer:
		log.Info().Msg("Outgoing call request withdrawn by receiver")
	case domain.PhaseInCall:
		s.leaveRoomLocked()
	default:
		return
	}
	s.phase = domain.PhaseIdle
	s.current = nil
	s.drainIncoming()
}

func (s *CallSession) joinRoomLocked(ctx context.Context, req domain.CallRequest) error {
	if s.phase == domain.PhaseInCall {
		return nil
	}
	token, err := s.tokens.RoomToken(s.self.ChatID.String(), req.RoomName, s.tokenTTL)
	if err != nil {
		return fmt.Errorf("issue room token: %w", err)
	}
	room, err := s.media.JoinRoom(ctx, token, req.RoomName, s.self.ChatID, s.self.Username)
	if err != nil {
		return fmt.Errorf("join media room %s: %w", req.RoomName, err)
	}
	s.room = room
	s.phase = domain.PhaseInCall
	s.current = &req
	s.drainIncoming()
	log.Info().Str("room", req.RoomName).Msg("Joined media room")
	return nil
}

func (s *CallSession) leaveRoomLocked() {
	if s.room == nil {
		return
	}
	if err := s.room.Leave(); err != nil {
		log.Error().Err(err).Str("room", s.room.Room()).Msg("Error leaving media room")
	}
	s.room = nil
}

// logOutcome classifies and appends the terminal history entry. History
// is best-effort: an append failure never blocks or reverses the state
// transition that triggered it.
func (s *CallSession) logOutcome(ctx context.Context, req domain.CallRequest, trigger domain.CallTrigger) {
	outcome, err := domain.ClassifyOutcome(req.Status, trigger)
	if err != nil {
		log.Error().Err(err).Str("status", string(req.Status)).Str("trigger", string(trigger)).Msg("Unclassifiable call outcome")
		return
	}
	entry := domain.NewHistoryEntry(req, outcome, s.now())
	if err := s.history.Append(ctx, entry); err != nil {
		log.Error().Err(err).Str("attempt", entry.AttemptID).Str("outcome", string(outcome)).Msg("Failed to append call history")
		return
	}
	log.Info().Str("attempt", entry.AttemptID).Str("outcome", string(outcome)).Int("duration", entry.DurationSec).Msg("Call attempt terminated")
}

func (s *CallSession) pushMissedNotice(ctx context.Context, req domain.CallRequest) {
	if s.notify == nil {
		return
	}
	_, err := s.notify.Push(ctx, s.self.ChatID, domain.Notification{
		Kind:        domain.NotifyMissedCall,
		FromID:      req.CallerID,
		FromName:    req.CallerName,
		Body:        "Missed " + string(req.CallType) + " call from " + req.CallerName,
		TimestampMS: s.now().UnixMilli(),
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to push missed-call notification")
	}
}

func (s *CallSession) drainIncoming() {
	select {
	case <-s.incoming:
	default:
	}
}
