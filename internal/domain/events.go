package domain

// EventType names a session broadcast.
type EventType string

const (
	EventParticipantJoined EventType = "participant-joined"
	EventParticipantLeft   EventType = "participant-left"
	EventQuizStatus        EventType = "quiz-status"
	EventQuizStarted       EventType = "quiz-started"
	EventNextQuestion      EventType = "next-question"
	EventAnswerUpdate      EventType = "answer-update"
	EventQuizEnded         EventType = "quiz-ended"
)

// Event is a single state change fanned out to the members of a session.
// Seq increases by one for every event published to the whole session. Events sent
// to a single member, such as the quiz-status snapshot on join, leave it zero.
type Event struct {
	Type    EventType `json:"type"`
	Code    string    `json:"code"`
	Seq     uint64    `json:"seq,omitempty"`
	Payload any       `json:"payload"`
}

type ParticipantJoined struct {
	UserID            string `json:"userId"`
	UserName          string `json:"userName"`
	TotalParticipants int    `json:"totalParticipants"`
}

type ParticipantLeft struct {
	UserID            string `json:"userId"`
	UserName          string `json:"userName"`
	TotalParticipants int    `json:"totalParticipants"`
}

type QuizStarted struct {
	Code string `json:"code"`
}

type NextQuestion struct {
	QuestionID string         `json:"questionId"`
	Text       string         `json:"text"`
	Options    []PublicOption `json:"options"`
	Index      int            `json:"index"`
	Total      int            `json:"total"`
}

type AnswerUpdate struct {
	QuestionID     string         `json:"questionId"`
	OptionCounts   map[string]int `json:"optionCounts"`
	TotalResponses int            `json:"totalResponses"`
}

type QuizEnded struct {
	FinalScores       []FinalScore `json:"finalScores"`
	TotalParticipants int          `json:"totalParticipants"`
}
