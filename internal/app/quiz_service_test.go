package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

func TestLiveQuizEndToEnd(t *testing.T) {
	ctx := context.Background()
	quiz := sampleQuiz()
	quiz.Questions = quiz.Questions[:1]
	service := app.NewQuizService(
		memory.NewSessionStoreWithClock(newTestClock()),
		memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{"ABC123": quiz}), time.Minute),
	)

	for _, u := range []string{"U1", "U2", "U3"} {
		if _, err := service.Join(ctx, "ABC123", participant(u), nil); err != nil {
			t.Fatalf("join %s: %v", u, err)
		}
	}
	if n, _ := service.Count(ctx, "ABC123"); n != 3 {
		t.Fatalf("expected 3 participants, got %d", n)
	}

	mustStart(t, service, "ABC123")
	if _, err := service.AdvanceQuestion(ctx, "ABC123", "Q1"); err != nil {
		t.Fatalf("advance: %v", err)
	}

	submit(t, service, "U1", "Q1", "O1")
	submit(t, service, "U2", "Q1", "O2")
	tally := submit(t, service, "U3", "Q1", "O1")

	want := map[string]int{"O1": 2, "O2": 1, "O3": 0, "O4": 0}
	assertCounts(t, tally, want, 3)

	scores, err := service.End(ctx, "ABC123")
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if len(scores) != 3 {
		t.Fatalf("expected 3 scores, got %+v", scores)
	}
	// U1 and U3 tie; U1 answered first.
	order := []string{scores[0].UserID, scores[1].UserID, scores[2].UserID}
	if order[0] != "U1" || order[1] != "U3" || order[2] != "U2" {
		t.Fatalf("unexpected leaderboard order %v", order)
	}
	if scores[0].Score != 1 || scores[0].TotalQuestions != 1 || scores[2].Score != 0 {
		t.Fatalf("unexpected scores %+v", scores)
	}
}

func TestResubmissionReplacesPreviousAnswer(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	joinAll(t, service, "U1")
	mustStart(t, service, "ABC123")
	if _, err := service.AdvanceQuestion(ctx, "ABC123", "Q1"); err != nil {
		t.Fatalf("advance: %v", err)
	}

	submit(t, service, "U1", "Q1", "O1")
	tally := submit(t, service, "U1", "Q1", "O2")
	assertCounts(t, tally, map[string]int{"O1": 0, "O2": 1, "O3": 0, "O4": 0}, 1)

	again, err := service.TallyFor(ctx, "ABC123", "Q1")
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	assertCounts(t, again, map[string]int{"O1": 0, "O2": 1, "O3": 0, "O4": 0}, 1)
}

func TestTallySumMatchesTotalAcrossResubmissions(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	users := []string{"U1", "U2", "U3", "U4"}
	joinAll(t, service, users...)
	mustStart(t, service, "ABC123")
	if _, err := service.AdvanceQuestion(ctx, "ABC123", "Q1"); err != nil {
		t.Fatalf("advance: %v", err)
	}

	options := []string{"O1", "O2", "O3", "O4"}
	for round := 0; round < 5; round++ {
		for i, u := range users {
			tally := submit(t, service, u, "Q1", options[(i+round)%len(options)])
			sum := 0
			for _, c := range tally.OptionCounts {
				sum += c
			}
			if sum != tally.TotalResponses {
				t.Fatalf("sum %d != total %d", sum, tally.TotalResponses)
			}
		}
	}
	final, _ := service.TallyFor(ctx, "ABC123", "Q1")
	if final.TotalResponses != len(users) {
		t.Fatalf("expected %d responses, got %d", len(users), final.TotalResponses)
	}
	// Round 4: user i picked options[(i+4)%4] == options[i].
	assertCounts(t, final, map[string]int{"O1": 1, "O2": 1, "O3": 1, "O4": 1}, 4)
}

func TestConcurrentSubmissionsDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	users := make([]string, 50)
	for i := range users {
		users[i] = "user-" + string(rune('A'+i%26)) + string(rune('a'+i/26))
	}
	joinAll(t, service, users...)
	mustStart(t, service, "ABC123")
	if _, err := service.AdvanceQuestion(ctx, "ABC123", "Q1"); err != nil {
		t.Fatalf("advance: %v", err)
	}

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			for _, opt := range []string{"O3", "O2", "O1"} {
				if _, err := service.SubmitAnswer(ctx, "ABC123", u, "Q1", opt); err != nil {
					t.Errorf("submit: %v", err)
				}
			}
		}(u)
	}
	wg.Wait()

	tally, _ := service.TallyFor(ctx, "ABC123", "Q1")
	assertCounts(t, tally, map[string]int{"O1": len(users), "O2": 0, "O3": 0, "O4": 0}, len(users))
}

func TestStartTransitions(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)

	if err := service.Start(ctx, "ABC123"); !errors.Is(err, domain.ErrInvalidTransition) || !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected invalid transition for absent session, got %v", err)
	}

	joinAll(t, service, "U1")
	mustStart(t, service, "ABC123")
	if err := service.Start(ctx, "ABC123"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected second start to fail, got %v", err)
	}

	if _, err := service.End(ctx, "ABC123"); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := service.Start(ctx, "ABC123"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected start after end to fail, got %v", err)
	}
	if _, err := service.End(ctx, "ABC123"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected second end to fail, got %v", err)
	}
}

func TestAdvanceWhileIdleEmitsNothing(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	rec := newRecorder()
	if _, err := service.Join(ctx, "ABC123", participant("U1"), rec); err != nil {
		t.Fatalf("join: %v", err)
	}
	rec.waitFor(t, domain.EventParticipantJoined)

	if _, err := service.AdvanceQuestion(ctx, "ABC123", "Q1"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if _, err := service.NextQuestion(ctx, "ABC123"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	status, _ := service.Status(ctx, "ABC123")
	if status.CurrentQuestionID != "" {
		t.Fatalf("question should not be set, got %q", status.CurrentQuestionID)
	}
	rec.expectQuiet(t, 50*time.Millisecond)
}

func TestEndFromIdleIsAllowed(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	joinAll(t, service, "U1")

	scores, err := service.End(ctx, "ABC123")
	if err != nil {
		t.Fatalf("end from idle: %v", err)
	}
	if len(scores) != 1 || scores[0].Score != 0 || scores[0].TotalQuestions != 2 {
		t.Fatalf("unexpected scores %+v", scores)
	}
}

func TestSubmitValidation(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)

	if _, err := service.SubmitAnswer(ctx, "nope", "U1", "Q1", "O1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}

	joinAll(t, service, "U1")
	if _, err := service.SubmitAnswer(ctx, "ABC123", "U1", "Q1", "O1"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition before start, got %v", err)
	}

	mustStart(t, service, "ABC123")
	if _, err := service.SubmitAnswer(ctx, "ABC123", "stranger", "Q1", "O1"); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected participant error, got %v", err)
	}
	if _, err := service.SubmitAnswer(ctx, "ABC123", "U1", "Q9", "O1"); !errors.Is(err, domain.ErrInvalidQuestion) {
		t.Fatalf("expected invalid question, got %v", err)
	}
	if _, err := service.SubmitAnswer(ctx, "ABC123", "U1", "Q1", "P1"); !errors.Is(err, domain.ErrInvalidOption) {
		t.Fatalf("expected invalid option, got %v", err)
	}
	// Options of another question are invalid here.
	if _, err := service.SubmitAnswer(ctx, "ABC123", "U1", "Q1", "P2"); !errors.Is(err, domain.ErrInvalidOption) {
		t.Fatalf("expected invalid option, got %v", err)
	}
	tally, _ := service.TallyFor(ctx, "ABC123", "Q1")
	if tally.TotalResponses != 0 {
		t.Fatalf("rejected submissions must not change the tally: %+v", tally)
	}
}

func TestCancelledSubmissionLeavesNoTrace(t *testing.T) {
	service, _ := newTestService(t)
	joinAll(t, service, "U1")
	mustStart(t, service, "ABC123")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := service.SubmitAnswer(ctx, "ABC123", "U1", "Q1", "O1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	tally, _ := service.TallyFor(context.Background(), "ABC123", "Q1")
	if tally.TotalResponses != 0 {
		t.Fatalf("expected no responses, got %+v", tally)
	}
}

func TestNonCurrentAnswersScoreButDoNotBroadcast(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	rec := newRecorder()
	if _, err := service.Join(ctx, "ABC123", participant("U1"), rec); err != nil {
		t.Fatalf("join: %v", err)
	}
	mustStart(t, service, "ABC123")
	if _, err := service.AdvanceQuestion(ctx, "ABC123", "Q1"); err != nil {
		t.Fatalf("advance: %v", err)
	}
	rec.waitFor(t, domain.EventNextQuestion)

	submit(t, service, "U1", "Q2", "P2")
	rec.expectQuiet(t, 50*time.Millisecond)

	scores, err := service.End(ctx, "ABC123")
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if scores[0].Score != 1 || scores[0].TotalQuestions != 2 {
		t.Fatalf("expected 1/2, got %+v", scores[0])
	}
}

func TestEventsArriveInPublishOrder(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	rec := newRecorder()
	if _, err := service.Join(ctx, "ABC123", participant("U1"), rec); err != nil {
		t.Fatalf("join: %v", err)
	}
	joinAll(t, service, "U2")
	mustStart(t, service, "ABC123")
	if _, err := service.NextQuestion(ctx, "ABC123"); err != nil {
		t.Fatalf("next: %v", err)
	}
	submit(t, service, "U2", "Q1", "O1")
	if _, err := service.End(ctx, "ABC123"); err != nil {
		t.Fatalf("end: %v", err)
	}
	rec.waitFor(t, domain.EventQuizEnded)

	got := rec.types()
	want := []domain.EventType{
		domain.EventQuizStatus,
		domain.EventParticipantJoined,
		domain.EventParticipantJoined,
		domain.EventQuizStarted,
		domain.EventNextQuestion,
		domain.EventAnswerUpdate,
		domain.EventQuizEnded,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s (all %v)", i, want[i], got[i], got)
		}
	}
	events := rec.all()
	for i := 2; i < len(events); i++ {
		if events[i].Seq != events[i-1].Seq+1 {
			t.Fatalf("sequence gap between %+v and %+v", events[i-1], events[i])
		}
	}
}

func TestLeaderboardAndStatsMidSession(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	joinAll(t, service, "U1", "U2", "U3")
	mustStart(t, service, "ABC123")
	submit(t, service, "U1", "Q1", "O2")
	submit(t, service, "U2", "Q1", "O1")
	service.Leave(ctx, "ABC123", "U3")

	board, err := service.Leaderboard(ctx, "ABC123")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	wantOrder := []string{"U2", "U1", "U3"}
	if len(board) != len(wantOrder) {
		t.Fatalf("expected %d rows, got %+v", len(wantOrder), board)
	}
	for i, id := range wantOrder {
		if board[i].UserID != id {
			t.Fatalf("row %d: expected %s, got %+v", i, id, board)
		}
	}
	if board[0].Score != 1 || board[0].TotalQuestions != 2 {
		t.Fatalf("unexpected leader %+v", board[0])
	}

	stats, err := service.Stats(ctx, "ABC123")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Session.Status != domain.StatusActive || stats.Session.TotalParticipants != 2 {
		t.Fatalf("unexpected snapshot %+v", stats.Session)
	}
	if len(stats.Participants) != 3 {
		t.Fatalf("expected full roster, got %+v", stats.Participants)
	}
	for i, id := range []string{"U1", "U2", "U3"} {
		row := stats.Participants[i]
		if row.UserID != id || row.JoinOrder != i+1 || row.Name != "name-"+id || row.JoinedAt.IsZero() {
			t.Fatalf("roster row %d: %+v", i, row)
		}
	}
	if !stats.Participants[0].Connected || stats.Participants[2].Connected {
		t.Fatalf("connected flags wrong: %+v", stats.Participants)
	}
	if stats.Participants[0].Answered != 1 || stats.Participants[2].Answered != 0 {
		t.Fatalf("answered counts wrong: %+v", stats.Participants)
	}
	if len(stats.Questions) != 2 || stats.Questions[0].QuestionID != "Q1" || stats.Questions[1].QuestionID != "Q2" {
		t.Fatalf("expected tallies in quiz order, got %+v", stats.Questions)
	}
	assertCounts(t, stats.Questions[0], map[string]int{"O1": 1, "O2": 1, "O3": 0, "O4": 0}, 2)
	assertCounts(t, stats.Questions[1], map[string]int{"P1": 0, "P2": 0}, 0)

	if _, err := service.End(ctx, "ABC123"); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := service.Close(ctx, "ABC123"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := service.Leaderboard(ctx, "ABC123"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found after close, got %v", err)
	}
	if _, err := service.Stats(ctx, "ABC123"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found after close, got %v", err)
	}
}

func TestNextQuestionPayloadHidesAnswers(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	rec := newRecorder()
	if _, err := service.Join(ctx, "ABC123", participant("U1"), rec); err != nil {
		t.Fatalf("join: %v", err)
	}
	mustStart(t, service, "ABC123")
	if _, err := service.NextQuestion(ctx, "ABC123"); err != nil {
		t.Fatalf("next: %v", err)
	}
	ev := rec.waitFor(t, domain.EventNextQuestion)
	payload, ok := ev.Payload.(domain.NextQuestion)
	if !ok {
		t.Fatalf("unexpected payload %T", ev.Payload)
	}
	if payload.QuestionID != "Q1" || len(payload.Options) != 4 || payload.Total != 2 {
		t.Fatalf("unexpected payload %+v", payload)
	}

	if _, err := service.NextQuestion(ctx, "ABC123"); err != nil {
		t.Fatalf("next: %v", err)
	}
	if _, err := service.NextQuestion(ctx, "ABC123"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected no questions left, got %v", err)
	}
}

func TestProgressResumesAtFirstUnanswered(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	joinAll(t, service, "U1")
	mustStart(t, service, "ABC123")

	p, err := service.Progress(ctx, "ABC123", "U1")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if p.Status != domain.ProgressInProgress || p.Question == nil || p.Question.ID != "Q1" {
		t.Fatalf("expected Q1 in progress, got %+v", p)
	}

	submit(t, service, "U1", "Q2", "P1")
	p, _ = service.Progress(ctx, "ABC123", "U1")
	if p.Question == nil || p.Question.ID != "Q1" || p.Answered != 1 {
		t.Fatalf("expected resume at Q1, got %+v", p)
	}

	submit(t, service, "U1", "Q1", "O1")
	p, _ = service.Progress(ctx, "ABC123", "U1")
	if p.Status != domain.ProgressCompleted || p.Question != nil || p.Correct != 1 {
		t.Fatalf("expected completed, got %+v", p)
	}

	if _, err := service.Progress(ctx, "ABC123", "ghost"); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected participant error, got %v", err)
	}
}

func TestPersistenceFailureKeepsLiveTally(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{err: errors.New("db down")}
	service := app.NewQuizService(
		memory.NewSessionStoreWithClock(newTestClock()),
		testQuizRepo(),
		app.WithResponseStore(store),
	)
	joinAll(t, service, "U1")
	mustStart(t, service, "ABC123")

	tally, err := service.SubmitAnswer(ctx, "ABC123", "U1", "Q1", "O2")
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if tally.OptionCounts["O2"] != 1 || tally.TotalResponses != 1 {
		t.Fatalf("tally should include the answer, got %+v", tally)
	}
	again, _ := service.TallyFor(ctx, "ABC123", "Q1")
	if again.TotalResponses != 1 {
		t.Fatalf("in-memory tally lost the answer: %+v", again)
	}
}

func TestResponsesArePersisted(t *testing.T) {
	ctx := context.Background()
	store := memory.NewResponseStore()
	service := app.NewQuizService(
		memory.NewSessionStoreWithClock(newTestClock()),
		testQuizRepo(),
		app.WithResponseStore(store),
	)
	joinAll(t, service, "U1")
	mustStart(t, service, "ABC123")
	submit(t, service, "U1", "Q1", "O1")
	submit(t, service, "U1", "Q1", "O3")

	responses, err := service.Responses(ctx, "ABC123")
	if err != nil {
		t.Fatalf("responses: %v", err)
	}
	if len(responses) != 1 || responses[0].OptionID != "O3" {
		t.Fatalf("expected latest response only, got %+v", responses)
	}
}

func TestCloseAndEvict(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	joinAll(t, service, "U1")

	if err := service.Close(ctx, "ABC123"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected close of running session to fail, got %v", err)
	}
	if service.Evict(ctx, "ABC123") {
		t.Fatalf("running session must not be evicted")
	}

	if _, err := service.End(ctx, "ABC123"); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := service.Close(ctx, "ABC123"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := service.Status(ctx, "ABC123"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session gone, got %v", err)
	}
	if service.Evict(ctx, "ABC123") {
		t.Fatalf("evicting a removed session should report false")
	}

	// Disconnects for the removed session are harmless and a new join starts fresh.
	service.Disconnect(ctx, "conn-U1")
	res, err := service.Join(ctx, "ABC123", participant("U2"), nil)
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if res.TotalParticipants != 1 || res.Session.Status != domain.StatusIdle {
		t.Fatalf("expected fresh idle session, got %+v", res)
	}
}

func TestEvictionReloadsQuizContent(t *testing.T) {
	ctx := context.Background()
	loader := &countingLoader{quiz: sampleQuiz()}
	service := app.NewQuizService(
		memory.NewSessionStoreWithClock(newTestClock()),
		memory.NewQuizRepository(loader, time.Hour),
	)

	joinAll(t, service, "U1")
	if _, err := service.End(ctx, "ABC123"); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := service.Close(ctx, "ABC123"); err != nil {
		t.Fatalf("close: %v", err)
	}
	joinAll(t, service, "U1")
	if got := loader.loads(); got != 2 {
		t.Fatalf("expected the quiz to be reloaded for the new session, loads=%d", got)
	}
}

type countingLoader struct {
	mu   sync.Mutex
	n    int
	quiz domain.Quiz
}

func (l *countingLoader) LoadQuiz(_ context.Context, code string) (domain.Quiz, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.n++
	if code != l.quiz.Code {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return l.quiz, nil
}

func (l *countingLoader) loads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}

func TestEndSchedulesEviction(t *testing.T) {
	ctx := context.Background()
	scheduler := &recordingScheduler{}
	service := app.NewQuizService(
		memory.NewSessionStoreWithClock(newTestClock()),
		testQuizRepo(),
		app.WithEvictionScheduler(scheduler),
	)
	joinAll(t, service, "U1")
	if _, err := service.End(ctx, "ABC123"); err != nil {
		t.Fatalf("end: %v", err)
	}
	if len(scheduler.codes) != 1 || scheduler.codes[0] != "ABC123" {
		t.Fatalf("expected eviction scheduled, got %v", scheduler.codes)
	}
}

func TestJoinUnknownQuiz(t *testing.T) {
	service, _ := newTestService(t)
	_, err := service.Join(context.Background(), "missing", participant("U1"), nil)
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
}

func TestJoinEndedSessionRejected(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	joinAll(t, service, "U1")
	if _, err := service.End(ctx, "ABC123"); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := service.Join(ctx, "ABC123", participant("U2"), nil); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestWatcherReceivesEventsWithoutCounting(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	if _, err := service.Open(ctx, "ABC123"); err != nil {
		t.Fatalf("open: %v", err)
	}
	rec := newRecorder()
	cancel, err := service.Watch(ctx, "ABC123", rec)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer cancel()

	joinAll(t, service, "U1")
	ev := rec.waitFor(t, domain.EventParticipantJoined)
	if ev.Payload.(domain.ParticipantJoined).TotalParticipants != 1 {
		t.Fatalf("watcher must not be counted: %+v", ev.Payload)
	}
	if _, err := service.Watch(ctx, "other", rec); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
}

type failingStore struct {
	err error
}

func (s *failingStore) SaveResponse(context.Context, string, domain.Response) error {
	return s.err
}

func (s *failingStore) FindResponses(context.Context, string) ([]domain.Response, error) {
	return nil, s.err
}

type recordingScheduler struct {
	mu    sync.Mutex
	codes []string
}

func (r *recordingScheduler) ScheduleEviction(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = append(r.codes, code)
	return nil
}

func mustStart(t *testing.T, service *app.QuizService, code string) {
	t.Helper()
	if err := service.Start(context.Background(), code); err != nil {
		t.Fatalf("start: %v", err)
	}
}

func submit(t *testing.T, service *app.QuizService, userID, questionID, optionID string) domain.Tally {
	t.Helper()
	tally, err := service.SubmitAnswer(context.Background(), "ABC123", userID, questionID, optionID)
	if err != nil {
		t.Fatalf("submit %s %s %s: %v", userID, questionID, optionID, err)
	}
	return tally
}

func joinAll(t *testing.T, service *app.QuizService, users ...string) {
	t.Helper()
	for _, u := range users {
		if _, err := service.Join(context.Background(), "ABC123", participant(u), nil); err != nil {
			t.Fatalf("join %s: %v", u, err)
		}
	}
}

func assertCounts(t *testing.T, tally domain.Tally, want map[string]int, total int) {
	t.Helper()
	if tally.TotalResponses != total {
		t.Fatalf("expected %d responses, got %d", total, tally.TotalResponses)
	}
	if len(tally.OptionCounts) != len(want) {
		t.Fatalf("expected counts %v, got %v", want, tally.OptionCounts)
	}
	for id, n := range want {
		if tally.OptionCounts[id] != n {
			t.Fatalf("expected counts %v, got %v", want, tally.OptionCounts)
		}
	}
}
