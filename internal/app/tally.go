package app

import (
	"fmt"
	"sort"
	"time"

	"live-quiz-service/internal/domain"
)

// TallyEngine owns response bookkeeping for a session. It keeps no state of its own;
// every method works on a *Session whose mu is held by the caller.
//
// Tallies are recomputed from the response mapping on every call instead of being
// kept as running counters, so a resubmission can never be counted twice.
type TallyEngine struct{}

// recordLocked validates the submission, replaces the user's previous response to
// the question and returns the stored response with the fresh tally.
func (TallyEngine) recordLocked(s *Session, userID, questionID, optionID string, at time.Time) (domain.Response, domain.Tally, error) {
	question, _, ok := s.quiz.Question(questionID)
	if !ok {
		return domain.Response{}, domain.Tally{}, fmt.Errorf("%w: %q", domain.ErrInvalidQuestion, questionID)
	}
	if _, ok := question.Option(optionID); !ok {
		return domain.Response{}, domain.Tally{}, fmt.Errorf("%w: %q for question %q", domain.ErrInvalidOption, optionID, questionID)
	}

	byUser, ok := s.responses[questionID]
	if !ok {
		byUser = make(map[string]domain.Response)
		s.responses[questionID] = byUser
	}

	resp := domain.Response{
		UserID:     userID,
		QuestionID: questionID,
		OptionID:   optionID,
		Timestamp:  at,
	}
	// Equal timestamps resolve to the later arrival.
	if prev, ok := byUser[userID]; !ok || !at.Before(prev.Timestamp) {
		byUser[userID] = resp
		if entry, ok := s.roster[userID]; ok {
			entry.lastAnswer = at
		}
	} else {
		resp = prev
	}

	return resp, tallyQuestion(question, byUser), nil
}

// tallyLocked recomputes the tally of one question.
func (TallyEngine) tallyLocked(s *Session, questionID string) (domain.Tally, error) {
	question, _, ok := s.quiz.Question(questionID)
	if !ok {
		return domain.Tally{}, fmt.Errorf("%w: %q", domain.ErrInvalidQuestion, questionID)
	}
	return tallyQuestion(question, s.responses[questionID]), nil
}

// nextUnansweredLocked returns the lowest-index question the user has not answered.
func (TallyEngine) nextUnansweredLocked(s *Session, userID string) (domain.Question, bool) {
	for _, q := range s.quiz.Questions {
		if _, answered := s.responses[q.ID][userID]; !answered {
			return q, true
		}
	}
	return domain.Question{}, false
}

// progressLocked summarises one user's answers.
func (e TallyEngine) progressLocked(s *Session, userID string) domain.Progress {
	p := domain.Progress{
		Status:         domain.ProgressCompleted,
		TotalQuestions: len(s.quiz.Questions),
	}
	for _, q := range s.quiz.Questions {
		resp, ok := s.responses[q.ID][userID]
		if !ok {
			continue
		}
		p.Answered++
		if opt, ok := q.Option(resp.OptionID); ok && opt.Correct {
			p.Correct++
		}
	}
	if q, ok := e.nextUnansweredLocked(s, userID); ok {
		pub := q.Public()
		p.Status = domain.ProgressInProgress
		p.Question = &pub
	}
	return p
}

// finalScoresLocked scores every participant who ever joined: correct answers over
// total questions, highest first. Ties go to whoever recorded their last answer
// earliest, then to join order.
func (e TallyEngine) finalScoresLocked(s *Session) []domain.FinalScore {
	type ranked struct {
		score domain.FinalScore
		entry *rosterEntry
	}
	rows := make([]ranked, 0, len(s.roster))
	for userID, entry := range s.roster {
		p := e.progressLocked(s, userID)
		rows = append(rows, ranked{
			score: domain.FinalScore{
				UserID:         userID,
				Name:           entry.name,
				Score:          p.Correct,
				TotalQuestions: p.TotalQuestions,
			},
			entry: entry,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.score.Score != b.score.Score {
			return a.score.Score > b.score.Score
		}
		aDone, bDone := !a.entry.lastAnswer.IsZero(), !b.entry.lastAnswer.IsZero()
		if aDone != bDone {
			return aDone
		}
		if aDone && !a.entry.lastAnswer.Equal(b.entry.lastAnswer) {
			return a.entry.lastAnswer.Before(b.entry.lastAnswer)
		}
		return a.entry.joinOrder < b.entry.joinOrder
	})

	scores := make([]domain.FinalScore, 0, len(rows))
	for _, r := range rows {
		scores = append(scores, r.score)
	}
	return scores
}

// allTalliesLocked recomputes every question's tally in quiz order.
func (TallyEngine) allTalliesLocked(s *Session) []domain.Tally {
	tallies := make([]domain.Tally, 0, len(s.quiz.Questions))
	for _, q := range s.quiz.Questions {
		tallies = append(tallies, tallyQuestion(q, s.responses[q.ID]))
	}
	return tallies
}

func tallyQuestion(q domain.Question, byUser map[string]domain.Response) domain.Tally {
	counts := make(map[string]int, len(q.Options))
	for _, o := range q.Options {
		counts[o.ID] = 0
	}
	total := 0
	for _, resp := range byUser {
		if _, ok := counts[resp.OptionID]; !ok {
			continue
		}
		counts[resp.OptionID]++
		total++
	}
	return domain.Tally{
		QuestionID:     q.ID,
		OptionCounts:   counts,
		TotalResponses: total,
	}
}
