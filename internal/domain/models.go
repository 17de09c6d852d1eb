package domain

import "time"

// Status is the lifecycle state of a live quiz session.
type Status string

const (
	StatusIdle   Status = "idle"
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// ParticipantRef identifies a participant and the connection currently bound to them.
type ParticipantRef struct {
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
	ConnectionID string `json:"connectionId"`
}

// Response is one participant's answer to one question. Later responses for the same
// (user, question) pair replace earlier ones.
type Response struct {
	UserID     string    `json:"userId"`
	QuestionID string    `json:"questionId"`
	OptionID   string    `json:"optionId"`
	Timestamp  time.Time `json:"timestamp"`
}

// Tally is the live aggregate for one question. It is always derived from the
// response mapping, never stored.
type Tally struct {
	QuestionID     string         `json:"questionId"`
	OptionCounts   map[string]int `json:"optionCounts"`
	TotalResponses int            `json:"totalResponses"`
}

// FinalScore is one leaderboard row produced when a session ends.
type FinalScore struct {
	UserID         string `json:"userId"`
	Name           string `json:"name"`
	Score          int    `json:"score"`
	TotalQuestions int    `json:"totalQuestions"`
}

// JoinResult is returned to a participant after a successful join.
type JoinResult struct {
	Accepted          bool          `json:"accepted"`
	TotalParticipants int           `json:"totalParticipants"`
	Session           SessionStatus `json:"session"`
}

// SessionStatus is a point-in-time snapshot of a session.
type SessionStatus struct {
	Code              string `json:"code"`
	QuizID            string `json:"quizId"`
	Title             string `json:"title"`
	Status            Status `json:"status"`
	CurrentQuestionID string `json:"currentQuestionId,omitempty"`
	TotalParticipants int    `json:"totalParticipants"`
	TotalQuestions    int    `json:"totalQuestions"`
}

// ParticipantSummary is one roster row: everyone who joined, in join order,
// including members who have since left.
type ParticipantSummary struct {
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	JoinOrder int       `json:"joinOrder"`
	JoinedAt  time.Time `json:"joinedAt"`
	Connected bool      `json:"connected"`
	Answered  int       `json:"answered"`
}

// SessionStats is the host's view of a session: the snapshot, the roster and the
// tally of every question in quiz order.
type SessionStats struct {
	Session      SessionStatus        `json:"session"`
	Participants []ParticipantSummary `json:"participants"`
	Questions    []Tally              `json:"questions"`
}

const (
	ProgressInProgress = "in_progress"
	ProgressCompleted  = "completed"
)

// Progress tells a (re)connecting participant where to resume.
type Progress struct {
	Status         string          `json:"status"`
	Question       *PublicQuestion `json:"currentQuestion,omitempty"`
	Answered       int             `json:"answered"`
	Correct        int             `json:"correct"`
	TotalQuestions int             `json:"totalQuestions"`
}

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models an MCQ question.
type Question struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Options []Option `json:"options"`
}

// Quiz is an ordered collection of questions addressed by its join code.
type Quiz struct {
	ID        string     `json:"id"`
	Code      string     `json:"code"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// PublicOption is an option as shown to participants; correctness is never included.
type PublicOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// PublicQuestion is a question as shown to participants.
type PublicQuestion struct {
	ID      string         `json:"id"`
	Text    string         `json:"text"`
	Options []PublicOption `json:"options"`
}

// Public strips answer keys from the question.
func (q Question) Public() PublicQuestion {
	opts := make([]PublicOption, 0, len(q.Options))
	for _, o := range q.Options {
		opts = append(opts, PublicOption{ID: o.ID, Text: o.Text})
	}
	return PublicQuestion{ID: q.ID, Text: q.Text, Options: opts}
}

// Question returns the question with the given ID and its sequence index.
func (q Quiz) Question(id string) (Question, int, bool) {
	for i := range q.Questions {
		if q.Questions[i].ID == id {
			return q.Questions[i], i, true
		}
	}
	return Question{}, -1, false
}

// Option returns the option with the given ID.
func (q Question) Option(id string) (Option, bool) {
	for _, o := range q.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}
