package app

import (
	"fmt"
	"log/slog"
	"sync"

	"live-quiz-service/internal/domain"
)

// PresenceTracker maintains session membership and the connection index used to
// resolve transport disconnects back to a participant.
//
// Lock order: Session.mu before PresenceTracker.mu, never the reverse.
type PresenceTracker struct {
	sessions SessionRepository
	router   *BroadcastRouter
	log      *slog.Logger

	mu    sync.Mutex
	conns map[string]connRef
}

type connRef struct {
	code   string
	userID string
}

func NewPresenceTracker(sessions SessionRepository, router *BroadcastRouter, log *slog.Logger) *PresenceTracker {
	if log == nil {
		log = slog.Default()
	}
	return &PresenceTracker{
		sessions: sessions,
		router:   router,
		log:      log,
		conns:    make(map[string]connRef),
	}
}

// Join adds the participant or, if the user is already a member, swaps in the new
// connection and subscriber. The member count only grows for new users.
func (p *PresenceTracker) Join(s *Session, ref domain.ParticipantRef, sub Subscriber) (domain.JoinResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.removed {
		return domain.JoinResult{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, s.code)
	}
	if s.status == domain.StatusEnded {
		return domain.JoinResult{}, fmt.Errorf("%w: quiz %s has ended", domain.ErrInvalidTransition, s.code)
	}

	if existing, ok := s.members[ref.UserID]; ok {
		if existing.ref.ConnectionID != ref.ConnectionID {
			p.forget(existing.ref.ConnectionID)
		}
		existing.ref = ref
	} else {
		s.members[ref.UserID] = &member{ref: ref}
	}
	if entry, ok := s.roster[ref.UserID]; ok {
		entry.name = ref.DisplayName
	} else {
		s.joins++
		s.roster[ref.UserID] = &rosterEntry{name: ref.DisplayName, joinOrder: s.joins, joinedAt: s.now()}
	}
	p.remember(ref.ConnectionID, s.code, ref.UserID)

	if p.router != nil {
		p.router.attach(s.code, ref.UserID, sub)
	}

	status := s.snapshotLocked()
	// Private sends carry no Seq; only room-wide events advance it.
	if p.router != nil && sub != nil {
		p.router.Send(s.code, ref.UserID, domain.Event{
			Type:    domain.EventQuizStatus,
			Code:    s.code,
			Payload: status,
		})
	}
	s.publishLocked(p.router, domain.EventParticipantJoined, domain.ParticipantJoined{
		UserID:            ref.UserID,
		UserName:          ref.DisplayName,
		TotalParticipants: len(s.members),
	})

	p.log.Debug("participant joined", "code", s.code, "user", ref.UserID, "connection", ref.ConnectionID, "total", len(s.members))
	return domain.JoinResult{
		Accepted:          true,
		TotalParticipants: len(s.members),
		Session:           status,
	}, nil
}

// Leave removes a member. Unknown users are ignored so duplicate leave signals are harmless.
func (p *PresenceTracker) Leave(s *Session, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.leaveLocked(s, userID, "")
}

// Count returns the current membership size.
func (p *PresenceTracker) Count(s *Session) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}

// Connected reports whether connectionID is the live connection of a member.
// It turns false once the member reconnects elsewhere or leaves.
func (p *PresenceTracker) Connected(connectionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.conns[connectionID]
	return ok
}

// OnDisconnect resolves a dropped connection to its participant and removes them.
// Connections that were already replaced by a reconnect, already handled, or belong
// to a removed session are ignored.
func (p *PresenceTracker) OnDisconnect(connectionID string) {
	p.mu.Lock()
	ref, ok := p.conns[connectionID]
	p.mu.Unlock()
	if !ok {
		return
	}

	s, ok := p.sessions.Get(ref.code)
	if !ok {
		p.forget(connectionID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !p.leaveLocked(s, ref.userID, connectionID) {
		p.forget(connectionID)
	}
}

// leaveLocked removes userID from s. A non-empty connectionID restricts removal to
// that connection. It reports whether a member was removed.
func (p *PresenceTracker) leaveLocked(s *Session, userID, connectionID string) bool {
	m, ok := s.members[userID]
	if !ok {
		return false
	}
	if connectionID != "" && m.ref.ConnectionID != connectionID {
		return false
	}

	delete(s.members, userID)
	p.forget(m.ref.ConnectionID)
	if p.router != nil {
		p.router.detach(s.code, userID)
	}
	if s.removed {
		return true
	}

	s.publishLocked(p.router, domain.EventParticipantLeft, domain.ParticipantLeft{
		UserID:            userID,
		UserName:          m.ref.DisplayName,
		TotalParticipants: len(s.members),
	})
	p.log.Debug("participant left", "code", s.code, "user", userID, "total", len(s.members))
	return true
}

// dropSessionLocked clears the connection index entries of a removed session.
func (p *PresenceTracker) dropSessionLocked(s *Session) {
	for _, m := range s.members {
		p.forget(m.ref.ConnectionID)
	}
}

func (p *PresenceTracker) remember(connectionID, code, userID string) {
	if connectionID == "" {
		return
	}
	p.mu.Lock()
	p.conns[connectionID] = connRef{code: code, userID: userID}
	p.mu.Unlock()
}

func (p *PresenceTracker) forget(connectionID string) {
	if connectionID == "" {
		return
	}
	p.mu.Lock()
	delete(p.conns, connectionID)
	p.mu.Unlock()
}
