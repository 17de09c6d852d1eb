package domain

import "errors"

var (
	// ErrSessionNotFound is returned when an operation references an unknown quiz code.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrInvalidTransition is returned when a command does not fit the session's state.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrParticipantNotFound is returned when a user tries to act before joining.
	ErrParticipantNotFound = errors.New("participant not found in quiz")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrInvalidQuestion indicates a question ID that is not part of the quiz.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrInvalidOption indicates an option ID that is not part of the question.
	ErrInvalidOption = errors.New("invalid option")
	// ErrPersistence wraps a response store failure. The in-memory tally was still updated.
	ErrPersistence = errors.New("response persistence failed")
)
