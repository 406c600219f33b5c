package qgo

import "errors"

var (
	// ErrQueueFull is returned by RequestTemplate.Send when the number of
	// outstanding requests has reached the configured limit.
	ErrQueueFull = errors.New("pending request limit reached")

	// ErrRequestTimeout completes a call whose deadline passed before a
	// response arrived.
	ErrRequestTimeout = errors.New("request timed out awaiting a response")

	// ErrTemplateStopped fails sends issued after Stop and completes every
	// call still outstanding when the template stops.
	ErrTemplateStopped = errors.New("request template stopped")

	// ErrProducerClosed fails promises of sends issued after Close.
	ErrProducerClosed = errors.New("producer closed")

	// ErrNoTopicForType is returned by Resolve for a service type with no
	// configured topic.
	ErrNoTopicForType = errors.New("no topic configured for service type")
)
