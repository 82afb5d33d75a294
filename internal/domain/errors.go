package domain

import "errors"

var (
	// ErrStoreUnavailable is returned when the question pool backing source cannot be read.
	ErrStoreUnavailable = errors.New("question store unavailable")
	// ErrEmptyPool is returned when no questions are available, fallback included.
	ErrEmptyPool = errors.New("no questions available")
	// ErrInvalidQuestion indicates a pool record failed validation.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrNoPendingQuestion is returned when an answer arrives before any question was fetched.
	ErrNoPendingQuestion = errors.New("no pending question for session")
	// ErrAlreadyAnswered is returned when resubmission against a binding is rejected.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrMalformedRequest indicates a required request field is missing or unparsable.
	ErrMalformedRequest = errors.New("malformed request")
	// ErrUnauthenticated is returned when an operation needs an identity and none was resolved.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUserExists indicates the username or email is already registered.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound indicates no account matched the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials is returned on a failed login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidRegistration indicates registration input failed validation.
	ErrInvalidRegistration = errors.New("invalid registration")
)
