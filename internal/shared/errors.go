package shared

import "errors"

var (
	// ErrConnectionFailed is returned by a streaming transcriber's Send once
	// the reconnect window has been exhausted. It distinguishes "gave up"
	// from "still retrying", during which audio is dropped silently.
	ErrConnectionFailed = errors.New("provider connection failed permanently")

	// ErrParticipantUnknown marks audio whose speaker has not been
	// registered yet. Retryable: the next chunk re-resolves.
	ErrParticipantUnknown = errors.New("participant not found")

	// ErrNoCredentials means a provider has no credentials configured for
	// this deployment.
	ErrNoCredentials = errors.New("no credentials for provider")

	// ErrQueueStopped is returned when enqueueing to a persistence queue
	// that has been stopped.
	ErrQueueStopped = errors.New("persistence queue stopped")
)
