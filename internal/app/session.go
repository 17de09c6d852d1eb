package app

import (
	"sort"
	"sync"
	"time"

	"live-quiz-service/internal/domain"
)

// Session is the in-memory state of one live quiz. Every field below mu is owned by
// the session and only touched while mu is held.
type Session struct {
	code string
	now  func() time.Time

	mu                sync.Mutex
	quiz              domain.Quiz
	status            domain.Status
	currentQuestionID string
	members           map[string]*member
	roster            map[string]*rosterEntry
	joins             int
	responses         map[string]map[string]domain.Response
	seq               uint64
	removed           bool
}

type member struct {
	ref domain.ParticipantRef
}

// rosterEntry survives leaves so final scores include everyone who took part.
type rosterEntry struct {
	name       string
	joinOrder  int
	joinedAt   time.Time
	lastAnswer time.Time
}

// NewSession is exported for infrastructure layers that create sessions.
func NewSession(code string, quiz domain.Quiz) *Session {
	return NewSessionWithClock(code, quiz, time.Now)
}

// NewSessionWithClock allows deterministic timestamps in tests.
func NewSessionWithClock(code string, quiz domain.Quiz, now func() time.Time) *Session {
	return &Session{
		code:      code,
		now:       now,
		quiz:      quiz,
		status:    domain.StatusIdle,
		members:   make(map[string]*member),
		roster:    make(map[string]*rosterEntry),
		responses: make(map[string]map[string]domain.Response),
	}
}

// Code returns the session's quiz code.
func (s *Session) Code() string {
	return s.code
}

func (s *Session) snapshotLocked() domain.SessionStatus {
	return domain.SessionStatus{
		Code:              s.code,
		QuizID:            s.quiz.ID,
		Title:             s.quiz.Title,
		Status:            s.status,
		CurrentQuestionID: s.currentQuestionID,
		TotalParticipants: len(s.members),
		TotalQuestions:    len(s.quiz.Questions),
	}
}

// rosterLocked lists everyone who ever joined, in join order.
func (s *Session) rosterLocked() []domain.ParticipantSummary {
	rows := make([]domain.ParticipantSummary, 0, len(s.roster))
	for userID, entry := range s.roster {
		_, connected := s.members[userID]
		answered := 0
		for _, byUser := range s.responses {
			if _, ok := byUser[userID]; ok {
				answered++
			}
		}
		rows = append(rows, domain.ParticipantSummary{
			UserID:    userID,
			Name:      entry.name,
			JoinOrder: entry.joinOrder,
			JoinedAt:  entry.joinedAt,
			Connected: connected,
			Answered:  answered,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].JoinOrder < rows[j].JoinOrder })
	return rows
}

// publishLocked stamps the next sequence number and hands the event to the router.
// Called with mu held so publish order matches apply order.
func (s *Session) publishLocked(router *BroadcastRouter, typ domain.EventType, payload any) domain.Event {
	s.seq++
	ev := domain.Event{Type: typ, Code: s.code, Seq: s.seq, Payload: payload}
	if router != nil {
		router.Publish(s.code, ev)
	}
	return ev
}
