package orchestrator

import (
	"context"

	"github.com/mossy-p/voice-match/internal/models"
)

// Relay is the store-and-forward mailbox the orchestrator signals through.
// internal/relayclient implements it over HTTP; tests use an in-memory fake.
type Relay interface {
	CreateOffer(ctx context.Context, peer, offer string) error
	SendAnswer(ctx context.Context, peer, answer string) error
	ExchangeCandidate(ctx context.Context, peer, candidate string) error
	State(ctx context.Context, peer string) (*models.SignalingSession, error)
	Cleanup(ctx context.Context, peer string) error
}

// MediaSource acquires the local media tracks. Acquire blocks while the user
// is being asked for permission; Stop releases the tracks and must be safe to
// call repeatedly.
type MediaSource interface {
	Acquire(ctx context.Context) error
	Stop()
}

// TransportEvents are the callbacks a Transport fires. They may be invoked
// from any goroutine; the orchestrator converts each into a queued event.
type TransportEvents struct {
	OnLocalCandidate  func(candidate string)
	OnConnectionState func(state string) // "connected", "disconnected", "failed", "closed"
	OnICEState        func(state string) // "checking", "connected", "completed", ...
	OnTrack           func()
}

// TransportOptions select deployment-time transport policy.
type TransportOptions struct {
	// RelayOnly restricts ICE to relay (TURN) candidates. Costs latency,
	// maximizes connectivity on restrictive networks.
	RelayOnly bool
}

// Transport is the underlying media connection. PionTransport is the real
// implementation; tests substitute a scripted fake.
type Transport interface {
	// CreateOffer creates and installs a local offer. With iceRestart the
	// offer renegotiates ICE on the existing connection.
	CreateOffer(iceRestart bool) (offer string, err error)
	// AcceptOffer installs the remote offer and returns an installed answer.
	AcceptOffer(offer string) (answer string, err error)
	// AcceptAnswer installs the remote answer.
	AcceptAnswer(answer string) error
	AddRemoteCandidate(candidate string) error
	Close() error
}

// TransportFactory builds a fresh Transport wired to the given callbacks.
type TransportFactory func(opts TransportOptions, events TransportEvents) (Transport, error)
