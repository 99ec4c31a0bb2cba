package chat

import "errors"

var (
	// ErrOwnership is returned when a caller references a resource owned by
	// someone else. The rejection is uniform so existence never leaks.
	ErrOwnership = errors.New("not authorized for this resource")

	// ErrQuotaExceeded is returned when a session or prompt cap is reached.
	// Caller-correctable; never retried.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrNotFound is returned when the referenced resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned on a duplicate username or a duplicate
	// session name for the same owner.
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation is returned when generated output lacks the required
	// scene declaration.
	ErrValidation = errors.New("no scene class found in generated script")

	// ErrEmptyResponse is returned when the generator produced no output.
	ErrEmptyResponse = errors.New("generator returned an empty response")

	// ErrArtifactNotFound is returned when the renderer exited cleanly but
	// the expected output file is missing.
	ErrArtifactNotFound = errors.New("rendered artifact not found")
)
