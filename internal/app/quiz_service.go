package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"live-quiz-service/internal/domain"
)

// SessionRepository abstracts where live sessions are registered (in-memory, Redis-marked, etc).
type SessionRepository interface {
	GetOrCreate(code string, quiz domain.Quiz) *Session
	Get(code string) (*Session, bool)
	Remove(code string)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, code string) (domain.Quiz, error)
}

// ResponseStore persists accepted responses outside the process.
type ResponseStore interface {
	SaveResponse(ctx context.Context, quizID string, resp domain.Response) error
	FindResponses(ctx context.Context, quizID string) ([]domain.Response, error)
}

// quizInvalidator is implemented by quiz caches that can drop a single quiz, so a
// session opened after eviction sees the current content.
type quizInvalidator interface {
	Invalidate(code string)
}

// EvictionScheduler arranges for an ended session to be removed later.
type EvictionScheduler interface {
	ScheduleEviction(ctx context.Context, code string) error
}

// QuizService drives the live session state machine: idle -> active -> ended.
// Each transition and the event it publishes happen under the session lock.
type QuizService struct {
	sessions  SessionRepository
	quizzes   QuizRepository
	responses ResponseStore
	eviction  EvictionScheduler
	router    *BroadcastRouter
	presence  *PresenceTracker
	tally     TallyEngine
	log       *slog.Logger
}

// Option customises a QuizService.
type Option func(*QuizService)

func WithResponseStore(store ResponseStore) Option {
	return func(s *QuizService) { s.responses = store }
}

func WithEvictionScheduler(scheduler EvictionScheduler) Option {
	return func(s *QuizService) { s.eviction = scheduler }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *QuizService) { s.log = log }
}

func WithRouter(router *BroadcastRouter) Option {
	return func(s *QuizService) { s.router = router }
}

func NewQuizService(store SessionRepository, quizzes QuizRepository, opts ...Option) *QuizService {
	s := &QuizService{sessions: store, quizzes: quizzes}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.router == nil {
		s.router = NewBroadcastRouter(s.log, defaultMailboxSize)
	}
	s.presence = NewPresenceTracker(store, s.router, s.log)
	return s
}

// Open creates the session for a quiz code without joining anyone.
func (s *QuizService) Open(ctx context.Context, code string) (domain.SessionStatus, error) {
	session, err := s.openSession(ctx, code)
	if err != nil {
		return domain.SessionStatus{}, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.snapshotLocked(), nil
}

// Join registers or refreshes a participant. sub, when non-nil, receives the
// session's events until the participant leaves or reconnects.
func (s *QuizService) Join(ctx context.Context, code string, ref domain.ParticipantRef, sub Subscriber) (domain.JoinResult, error) {
	for {
		session, err := s.openSession(ctx, code)
		if err != nil {
			return domain.JoinResult{}, err
		}
		res, err := s.presence.Join(session, ref, sub)
		// Lost a race with eviction: the next lookup creates a fresh session.
		if errors.Is(err, domain.ErrSessionNotFound) {
			continue
		}
		return res, err
	}
}

// Leave removes a participant regardless of which connection they hold, as when a
// host removes them. Unknown sessions and users are ignored.
func (s *QuizService) Leave(_ context.Context, code, userID string) {
	session, ok := s.sessions.Get(code)
	if !ok {
		return
	}
	s.presence.Leave(session, userID)
}

// Disconnect handles a transport-level connection drop or a leave requested over
// that connection. A connection already replaced by a reconnect changes nothing.
func (s *QuizService) Disconnect(_ context.Context, connectionID string) {
	s.presence.OnDisconnect(connectionID)
}

// Connected reports whether connectionID still speaks for its participant.
func (s *QuizService) Connected(_ context.Context, connectionID string) bool {
	return s.presence.Connected(connectionID)
}

// Count returns the number of joined participants.
func (s *QuizService) Count(_ context.Context, code string) (int, error) {
	session, err := s.lookup(code)
	if err != nil {
		return 0, err
	}
	return s.presence.Count(session), nil
}

// Watch subscribes an observer (e.g. the host's dashboard) that is not counted as a participant.
func (s *QuizService) Watch(_ context.Context, code string, sub Subscriber) (func(), error) {
	session, err := s.lookup(code)
	if err != nil {
		return nil, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.removed {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, code)
	}
	return s.router.Watch(code, sub), nil
}

// Start moves an idle session to active.
func (s *QuizService) Start(_ context.Context, code string) error {
	session, ok := s.sessions.Get(code)
	if !ok {
		return fmt.Errorf("%w: %w", domain.ErrInvalidTransition, domain.ErrSessionNotFound)
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	if session.removed {
		return fmt.Errorf("%w: %w", domain.ErrInvalidTransition, domain.ErrSessionNotFound)
	}
	if session.status != domain.StatusIdle {
		return fmt.Errorf("%w: cannot start quiz in %s state", domain.ErrInvalidTransition, session.status)
	}

	session.status = domain.StatusActive
	session.publishLocked(s.router, domain.EventQuizStarted, domain.QuizStarted{Code: code})
	s.log.Info("quiz started", "code", code, "participants", len(session.members))
	return nil
}

// AdvanceQuestion makes questionID the question in focus.
func (s *QuizService) AdvanceQuestion(_ context.Context, code, questionID string) (domain.PublicQuestion, error) {
	session, err := s.lookup(code)
	if err != nil {
		return domain.PublicQuestion{}, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	if err := s.requireActiveLocked(session, "advance question"); err != nil {
		return domain.PublicQuestion{}, err
	}
	question, index, ok := session.quiz.Question(questionID)
	if !ok {
		return domain.PublicQuestion{}, fmt.Errorf("%w: %q", domain.ErrInvalidQuestion, questionID)
	}
	return s.advanceLocked(session, question, index), nil
}

// NextQuestion advances to the question after the current one, or to the first
// question when none is in focus yet.
func (s *QuizService) NextQuestion(_ context.Context, code string) (domain.PublicQuestion, error) {
	session, err := s.lookup(code)
	if err != nil {
		return domain.PublicQuestion{}, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	if err := s.requireActiveLocked(session, "advance question"); err != nil {
		return domain.PublicQuestion{}, err
	}
	next := 0
	if session.currentQuestionID != "" {
		_, index, _ := session.quiz.Question(session.currentQuestionID)
		next = index + 1
	}
	if next >= len(session.quiz.Questions) {
		return domain.PublicQuestion{}, fmt.Errorf("%w: no questions left in quiz %s", domain.ErrInvalidTransition, code)
	}
	return s.advanceLocked(session, session.quiz.Questions[next], next), nil
}

func (s *QuizService) advanceLocked(session *Session, question domain.Question, index int) domain.PublicQuestion {
	session.currentQuestionID = question.ID
	public := question.Public()
	session.publishLocked(s.router, domain.EventNextQuestion, domain.NextQuestion{
		QuestionID: question.ID,
		Text:       question.Text,
		Options:    public.Options,
		Index:      index,
		Total:      len(session.quiz.Questions),
	})
	s.log.Info("question advanced", "code", session.code, "question", question.ID, "index", index)
	return public
}

// SubmitAnswer records a participant's answer and returns the question's tally.
// Only answers to the question in focus are broadcast live; answers to other
// questions still count toward final scores.
//
// If the response store fails, the returned error wraps domain.ErrPersistence and
// the returned tally already includes the answer.
func (s *QuizService) SubmitAnswer(ctx context.Context, code, userID, questionID, optionID string) (domain.Tally, error) {
	session, err := s.lookup(code)
	if err != nil {
		return domain.Tally{}, err
	}

	resp, tally, quizID, err := s.recordAnswer(ctx, session, userID, questionID, optionID)
	if err != nil {
		return domain.Tally{}, err
	}

	if s.responses != nil {
		if err := s.responses.SaveResponse(context.WithoutCancel(ctx), quizID, resp); err != nil {
			s.log.Error("persist response", "code", code, "user", userID, "question", questionID, "error", err)
			return tally, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
		}
	}
	return tally, nil
}

func (s *QuizService) recordAnswer(ctx context.Context, session *Session, userID, questionID, optionID string) (domain.Response, domain.Tally, string, error) {
	session.mu.Lock()
	defer session.mu.Unlock()

	if err := s.requireActiveLocked(session, "submit answer"); err != nil {
		return domain.Response{}, domain.Tally{}, "", err
	}
	if _, ok := session.roster[userID]; !ok {
		return domain.Response{}, domain.Tally{}, "", fmt.Errorf("%w: %s", domain.ErrParticipantNotFound, userID)
	}
	// The caller went away before anything changed: abandon cleanly.
	if err := ctx.Err(); err != nil {
		return domain.Response{}, domain.Tally{}, "", err
	}

	resp, tally, err := s.tally.recordLocked(session, userID, questionID, optionID, session.now())
	if err != nil {
		return domain.Response{}, domain.Tally{}, "", err
	}
	if questionID == session.currentQuestionID {
		session.publishLocked(s.router, domain.EventAnswerUpdate, domain.AnswerUpdate{
			QuestionID:     tally.QuestionID,
			OptionCounts:   tally.OptionCounts,
			TotalResponses: tally.TotalResponses,
		})
	}
	return resp, tally, session.quiz.ID, nil
}

// End closes the quiz, publishes the final leaderboard and makes the session
// eligible for eviction.
func (s *QuizService) End(ctx context.Context, code string) ([]domain.FinalScore, error) {
	session, err := s.lookup(code)
	if err != nil {
		return nil, err
	}

	scores, err := func() ([]domain.FinalScore, error) {
		session.mu.Lock()
		defer session.mu.Unlock()
		if session.removed {
			return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, code)
		}
		if session.status == domain.StatusEnded {
			return nil, fmt.Errorf("%w: quiz %s already ended", domain.ErrInvalidTransition, code)
		}

		scores := s.tally.finalScoresLocked(session)
		session.status = domain.StatusEnded
		session.currentQuestionID = ""
		session.publishLocked(s.router, domain.EventQuizEnded, domain.QuizEnded{
			FinalScores:       scores,
			TotalParticipants: len(session.members),
		})
		return scores, nil
	}()
	if err != nil {
		return nil, err
	}
	s.log.Info("quiz ended", "code", code, "scored", len(scores))

	if s.eviction != nil {
		if err := s.eviction.ScheduleEviction(ctx, code); err != nil {
			s.log.Warn("schedule eviction", "code", code, "error", err)
		}
	}
	return scores, nil
}

// Close acknowledges an ended session and removes it immediately.
func (s *QuizService) Close(_ context.Context, code string) error {
	session, err := s.lookup(code)
	if err != nil {
		return err
	}
	if !s.remove(session) {
		return fmt.Errorf("%w: quiz %s has not ended", domain.ErrInvalidTransition, code)
	}
	return nil
}

// Evict removes an ended session. It reports false when the session is unknown or
// still running, which makes it safe to call from delayed jobs.
func (s *QuizService) Evict(_ context.Context, code string) bool {
	session, ok := s.sessions.Get(code)
	if !ok {
		return false
	}
	return s.remove(session)
}

func (s *QuizService) remove(session *Session) bool {
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.removed || session.status != domain.StatusEnded {
		return false
	}
	session.removed = true
	s.presence.dropSessionLocked(session)
	s.router.CloseRoom(session.code)
	s.sessions.Remove(session.code)
	if cache, ok := s.quizzes.(quizInvalidator); ok {
		cache.Invalidate(session.code)
	}
	s.log.Info("session evicted", "code", session.code)
	return true
}

// Status returns a snapshot of the session.
func (s *QuizService) Status(_ context.Context, code string) (domain.SessionStatus, error) {
	session, err := s.lookup(code)
	if err != nil {
		return domain.SessionStatus{}, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.snapshotLocked(), nil
}

// TallyFor recomputes the tally of any question in the quiz.
func (s *QuizService) TallyFor(_ context.Context, code, questionID string) (domain.Tally, error) {
	session, err := s.lookup(code)
	if err != nil {
		return domain.Tally{}, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	return s.tally.tallyLocked(session, questionID)
}

// Leaderboard ranks everyone who joined by their answers so far, the same way End
// does. It works in every state until the session is removed.
func (s *QuizService) Leaderboard(_ context.Context, code string) ([]domain.FinalScore, error) {
	session, err := s.lookup(code)
	if err != nil {
		return nil, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.removed {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, code)
	}
	return s.tally.finalScoresLocked(session), nil
}

// Stats returns the session snapshot with its roster and every question's tally.
func (s *QuizService) Stats(_ context.Context, code string) (domain.SessionStats, error) {
	session, err := s.lookup(code)
	if err != nil {
		return domain.SessionStats{}, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.removed {
		return domain.SessionStats{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, code)
	}
	return domain.SessionStats{
		Session:      session.snapshotLocked(),
		Participants: session.rosterLocked(),
		Questions:    s.tally.allTalliesLocked(session),
	}, nil
}

// Progress tells a participant which question to resume at and how they are doing.
func (s *QuizService) Progress(_ context.Context, code, userID string) (domain.Progress, error) {
	session, err := s.lookup(code)
	if err != nil {
		return domain.Progress{}, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if _, ok := session.roster[userID]; !ok {
		return domain.Progress{}, fmt.Errorf("%w: %s", domain.ErrParticipantNotFound, userID)
	}
	return s.tally.progressLocked(session, userID), nil
}

// Responses lists persisted responses for the session's quiz.
func (s *QuizService) Responses(ctx context.Context, code string) ([]domain.Response, error) {
	if s.responses == nil {
		return nil, nil
	}
	quiz, err := s.quizzes.GetQuiz(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.responses.FindResponses(ctx, quiz.ID)
}

func (s *QuizService) requireActiveLocked(session *Session, action string) error {
	if session.removed {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, session.code)
	}
	if session.status != domain.StatusActive {
		return fmt.Errorf("%w: cannot %s in %s state", domain.ErrInvalidTransition, action, session.status)
	}
	return nil
}

func (s *QuizService) lookup(code string) (*Session, error) {
	session, ok := s.sessions.Get(code)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, code)
	}
	return session, nil
}

// openSession returns the live session for code, creating it from the quiz content
// when none exists. Unknown quizzes surface as ErrSessionNotFound.
func (s *QuizService) openSession(ctx context.Context, code string) (*Session, error) {
	if session, ok := s.sessions.Get(code); ok {
		return session, nil
	}
	quiz, err := s.quizzes.GetQuiz(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrQuizNotFound) {
			return nil, fmt.Errorf("%w: %w", domain.ErrSessionNotFound, err)
		}
		return nil, err
	}
	return s.sessions.GetOrCreate(code, quiz), nil
}
