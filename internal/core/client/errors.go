package client

import "github.com/pkg/errors"

var (
	// ErrManagerClosed is returned by operations on a closed manager.
	ErrManagerClosed = errors.New("client: manager closed")

	// ErrAlreadyConnected means a circuit to that simulator already exists.
	ErrAlreadyConnected = errors.New("client: already connected")

	// ErrNotConnected means no circuit to that simulator exists.
	ErrNotConnected = errors.New("client: not connected")
)
