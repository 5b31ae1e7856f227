package queue

import "errors"

var (
	// ErrNotConnected is returned when publishing without an open channel.
	ErrNotConnected = errors.New("queue: not connected")
	// ErrResultTimeout is returned by Await when no result arrives in time.
	ErrResultTimeout = errors.New("queue: timed out waiting for result")
)
