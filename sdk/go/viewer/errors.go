package viewer

import "github.com/pkg/errors"

var (
	ErrNoSimulator   = errors.New("viewer: no simulator address configured")
	ErrNoCredentials = errors.New("viewer: agent and session ids are required")
	ErrSessionClosed = errors.New("viewer: session closed")
)
