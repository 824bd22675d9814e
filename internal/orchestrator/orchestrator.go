// Package orchestrator drives the client-side connection state machine: it
// acquires local media, runs the offer/answer/candidate handshake through the
// relay store, watches the transport, retries after NAT/firewall failures,
// and tears everything down exactly once on every exit path.
//
// The machine is an explicit FSM fed by a queue: timer fires, transport
// callbacks, and relay poll results all enter as events consumed by a single
// goroutine, so no transition ever races another.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mossy-p/voice-match/internal/models"
)

type State string

const (
	StateIdle                 State = "idle"
	StateRequestingPermission State = "requesting-permission"
	StateConnecting           State = "connecting"
	StateConnected            State = "connected"
	StateDisconnected         State = "disconnected"
	StateError                State = "error"
)

type Config struct {
	HandshakeTimeout time.Duration // max time in connecting with no progress
	MaxRetries       int           // consecutive transport failures before giving up
	RetryDelay       time.Duration // fixed delay before each ICE restart
	PollInterval     time.Duration // relay store poll cadence
	RelayOnly        bool          // restrict ICE to relay candidates
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	return c
}

type eventKind int

const (
	evConnect eventKind = iota
	evPermission
	evLocalCandidate
	evTransportState
	evICEState
	evTrack
	evPoll
	evTimeout
	evRetry
	evRelayFailure
	evDisconnect
	evShutdown
)

type event struct {
	kind      eventKind
	gen       uint64
	peer      string
	initiator bool
	text      string // candidate, transport/ICE state, or relay op name
	err       error
	session   *models.SignalingSession
}

type Orchestrator struct {
	cfg     Config
	relay   Relay
	media   MediaSource
	factory TransportFactory
	log     *logrus.Entry

	events chan event
	quit   chan struct{}

	stateMu sync.Mutex
	state   State
	cause   string

	// Everything below is owned by the loop goroutine.
	peer      string
	initiator bool
	gen       uint64
	transport Transport
	progress  bool
	failures  int
	remoteSet bool
	answered  bool
	lastOffer string
	cursor    int
	sent      map[string]struct{}
	seen      map[string]struct{}
	pending   []string
	timeout   *time.Timer
	retry     *time.Timer
	stopPoll  context.CancelFunc
	cleaned   bool
}

func New(cfg Config, relay Relay, media MediaSource, factory TransportFactory) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg.withDefaults(),
		relay:   relay,
		media:   media,
		factory: factory,
		log:     logrus.WithField("component", "orchestrator"),
		events:  make(chan event, 64),
		quit:    make(chan struct{}),
		state:   StateIdle,
		cleaned: true,
	}
	go o.loop()
	return o
}

// Connect begins a session with peer. The initiator creates the offer; the
// other side answers. Only valid from idle or error (after cleanup).
func (o *Orchestrator) Connect(peer string, initiator bool) {
	o.post(event{kind: evConnect, peer: peer, initiator: initiator})
}

// Disconnect hangs up and returns the machine to idle.
func (o *Orchestrator) Disconnect() {
	o.post(event{kind: evDisconnect})
}

// Shutdown tears down and stops the event loop permanently.
func (o *Orchestrator) Shutdown() {
	o.post(event{kind: evShutdown})
}

func (o *Orchestrator) State() State {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	return o.state
}

// Cause describes the failure when State is error.
func (o *Orchestrator) Cause() string {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	return o.cause
}

func (o *Orchestrator) post(ev event) {
	select {
	case <-o.quit:
	case o.events <- ev:
	}
}

func (o *Orchestrator) loop() {
	for {
		select {
		case <-o.quit:
			return
		case ev := <-o.events:
			o.dispatch(ev)
			if ev.kind == evShutdown {
				return
			}
		}
	}
}

func (o *Orchestrator) dispatch(ev event) {
	// Events from a previous session generation are stale responses that
	// arrived after teardown; they must be ignored, not applied.
	if ev.kind != evConnect && ev.kind != evDisconnect && ev.kind != evShutdown && ev.gen != o.gen {
		return
	}

	switch ev.kind {
	case evConnect:
		o.handleConnect(ev)
	case evPermission:
		o.handlePermission(ev)
	case evLocalCandidate:
		o.handleLocalCandidate(ev.text)
	case evTransportState:
		o.handleTransportState(ev.text)
	case evICEState:
		o.handleICEState(ev.text)
	case evTrack:
		o.markProgress()
	case evPoll:
		o.handlePoll(ev)
	case evTimeout:
		o.handleTimeout()
	case evRetry:
		if o.State() == StateDisconnected {
			o.enterConnecting(true)
		}
	case evRelayFailure:
		o.fail(fmt.Sprintf("signaling %s failed: %v", ev.text, ev.err))
	case evDisconnect:
		o.fullCleanup()
		o.setState(StateIdle, "")
	case evShutdown:
		o.fullCleanup()
		o.setState(StateIdle, "")
		close(o.quit)
	}
}

func (o *Orchestrator) handleConnect(ev event) {
	switch o.State() {
	case StateIdle, StateError:
	default:
		o.log.WithField("state", o.State()).Warn("connect ignored: session in progress")
		return
	}

	o.gen++
	o.cleaned = false
	o.peer = ev.peer
	o.initiator = ev.initiator
	o.failures = 0
	o.setState(StateRequestingPermission, "")

	gen := o.gen
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.HandshakeTimeout)
		defer cancel()
		err := o.media.Acquire(ctx)
		o.post(event{kind: evPermission, gen: gen, err: err})
	}()
}

func (o *Orchestrator) handlePermission(ev event) {
	if o.State() != StateRequestingPermission {
		return
	}
	if ev.err != nil {
		o.fail(fmt.Sprintf("media permission denied: %v", ev.err))
		return
	}
	o.enterConnecting(false)
}

// enterConnecting starts (or restarts) the handshake: the progress flag is
// cleared and the no-progress timeout armed. restart reuses the existing
// transport with an ICE restart offer.
func (o *Orchestrator) enterConnecting(restart bool) {
	o.setState(StateConnecting, "")
	o.progress = false
	gen := o.gen

	if restart {
		o.answered = false
		o.cursor = 0
		offer, err := o.transport.CreateOffer(true)
		if err != nil {
			o.fail(fmt.Sprintf("ice restart failed: %v", err))
			return
		}
		o.markProgress()
		peer := o.peer
		o.relayDo(gen, "offer", func(ctx context.Context) error {
			return o.relay.CreateOffer(ctx, peer, offer)
		})
		o.armTimeout(gen)
		return
	}

	o.sent = make(map[string]struct{})
	o.seen = make(map[string]struct{})
	o.pending = nil
	o.cursor = 0
	o.remoteSet = false
	o.answered = false
	o.lastOffer = ""

	tr, err := o.factory(TransportOptions{RelayOnly: o.cfg.RelayOnly}, o.callbacks(gen))
	if err != nil {
		o.fail(fmt.Sprintf("transport setup failed: %v", err))
		return
	}
	o.transport = tr

	if o.initiator {
		offer, err := tr.CreateOffer(false)
		if err != nil {
			o.fail(fmt.Sprintf("create offer failed: %v", err))
			return
		}
		o.markProgress() // local description installed
		peer := o.peer
		o.relayDo(gen, "offer", func(ctx context.Context) error {
			return o.relay.CreateOffer(ctx, peer, offer)
		})
	}

	o.startPolling(gen)
	o.armTimeout(gen)
}

func (o *Orchestrator) callbacks(gen uint64) TransportEvents {
	return TransportEvents{
		OnLocalCandidate: func(c string) {
			o.post(event{kind: evLocalCandidate, gen: gen, text: c})
		},
		OnConnectionState: func(s string) {
			o.post(event{kind: evTransportState, gen: gen, text: s})
		},
		OnICEState: func(s string) {
			o.post(event{kind: evICEState, gen: gen, text: s})
		},
		OnTrack: func() {
			o.post(event{kind: evTrack, gen: gen})
		},
	}
}

func (o *Orchestrator) handleLocalCandidate(candidate string) {
	o.markProgress()
	// Content-equality dedup keeps redundant candidates off the relay.
	if _, dup := o.sent[candidate]; dup {
		return
	}
	o.sent[candidate] = struct{}{}
	peer := o.peer
	o.relayDo(o.gen, "candidate", func(ctx context.Context) error {
		return o.relay.ExchangeCandidate(ctx, peer, candidate)
	})
}

func (o *Orchestrator) handleTransportState(state string) {
	switch state {
	case "connected":
		o.markProgress()
		o.failures = 0
		if s := o.State(); s == StateConnecting || s == StateDisconnected {
			o.stopTimeout()
			o.setState(StateConnected, "")
			o.log.WithField("peer", o.peer).Info("transport connected")
		}
	case "disconnected", "failed":
		s := o.State()
		if s != StateConnected && s != StateConnecting {
			return
		}
		o.setState(StateDisconnected, "")
		o.failures++
		if o.failures >= o.cfg.MaxRetries {
			o.fail(fmt.Sprintf("connection lost: retry budget exhausted after %d failures", o.failures))
			return
		}
		gen := o.gen
		o.retry = time.AfterFunc(o.cfg.RetryDelay, func() {
			o.post(event{kind: evRetry, gen: gen})
		})
		o.log.WithFields(logrus.Fields{"peer": o.peer, "failures": o.failures}).Warn("transport lost, scheduling ice restart")
	}
}

func (o *Orchestrator) handleICEState(state string) {
	switch state {
	case "checking", "connected", "completed", "gathering":
		o.markProgress()
	}
}

func (o *Orchestrator) handlePoll(ev event) {
	if ev.err != nil || ev.session == nil {
		return
	}
	sess := ev.session

	// The offer string changes when the initiator runs an ICE restart (the
	// session is recreated with a fresh offer), so the comparison is against
	// the last offer applied, not a did-we-answer-once flag.
	if !o.initiator && sess.Offer != "" && sess.Offer != o.lastOffer {
		answer, err := o.transport.AcceptOffer(sess.Offer)
		if err != nil {
			o.fail(fmt.Sprintf("apply remote offer failed: %v", err))
			return
		}
		o.lastOffer = sess.Offer
		o.remoteSet = true
		o.markProgress() // remote offer + local answer installed
		o.flushPending()
		gen := ev.gen
		peer := o.peer
		o.relayDo(gen, "answer", func(ctx context.Context) error {
			return o.relay.SendAnswer(ctx, peer, answer)
		})
	}

	if o.initiator && !o.answered && sess.Answer != "" {
		if err := o.transport.AcceptAnswer(sess.Answer); err != nil {
			o.fail(fmt.Sprintf("apply remote answer failed: %v", err))
			return
		}
		o.remoteSet = true
		o.answered = true
		o.markProgress()
		o.flushPending()
	}

	// The session holds one shared candidate list; entries we pushed
	// ourselves come back on every poll and are filtered via the sent set.
	if o.cursor > len(sess.Candidates) {
		o.cursor = 0 // session was recreated underneath us
	}
	for _, c := range sess.Candidates[o.cursor:] {
		o.cursor++
		if _, ours := o.sent[c]; ours {
			continue
		}
		if _, dup := o.seen[c]; dup {
			continue
		}
		o.seen[c] = struct{}{}
		if !o.remoteSet {
			// Can't apply candidates before the remote description; queue
			// and flush once it is installed.
			o.pending = append(o.pending, c)
			continue
		}
		o.applyRemoteCandidate(c)
	}
}

func (o *Orchestrator) flushPending() {
	for _, c := range o.pending {
		o.applyRemoteCandidate(c)
	}
	o.pending = nil
}

func (o *Orchestrator) applyRemoteCandidate(candidate string) {
	if err := o.transport.AddRemoteCandidate(candidate); err != nil {
		o.log.WithError(err).Warn("remote candidate rejected")
	}
}

func (o *Orchestrator) handleTimeout() {
	if o.State() != StateConnecting {
		return
	}
	if !o.progress {
		o.fail(fmt.Sprintf("handshake timeout: no progress within %s", o.cfg.HandshakeTimeout))
		return
	}
	// Progress happened during this window; keep guarding against a stall
	// in the next one.
	o.progress = false
	o.armTimeout(o.gen)
}

func (o *Orchestrator) markProgress() {
	o.progress = true
}

func (o *Orchestrator) armTimeout(gen uint64) {
	o.stopTimeout()
	o.timeout = time.AfterFunc(o.cfg.HandshakeTimeout, func() {
		o.post(event{kind: evTimeout, gen: gen})
	})
}

func (o *Orchestrator) stopTimeout() {
	if o.timeout != nil {
		o.timeout.Stop()
		o.timeout = nil
	}
}

// relayDo runs a relay call off the loop goroutine; a failure comes back as
// an event carrying the operation name.
func (o *Orchestrator) relayDo(gen uint64, op string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			o.post(event{kind: evRelayFailure, gen: gen, text: op, err: err})
		}
	}()
}

func (o *Orchestrator) startPolling(gen uint64) {
	ctx, cancel := context.WithCancel(context.Background())
	o.stopPoll = cancel
	// Captured by value: cancellation is asynchronous and a later Connect
	// may rewrite o.peer before this goroutine observes ctx.Done().
	peer := o.peer
	go func() {
		ticker := time.NewTicker(o.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sess, err := o.relay.State(ctx, peer)
				if ctx.Err() != nil {
					return
				}
				o.post(event{kind: evPoll, gen: gen, session: sess, err: err})
			}
		}
	}()
}

func (o *Orchestrator) fail(cause string) {
	o.log.WithField("cause", cause).Error("session failed")
	o.fullCleanup()
	o.setState(StateError, cause)
}

// fullCleanup releases every session resource: timers, the poll loop, the
// transport and its handlers, local media, candidate queues and dedup sets,
// and the pair's relay mailbox. It runs on every exit path and is idempotent.
func (o *Orchestrator) fullCleanup() {
	if o.cleaned {
		return
	}
	o.cleaned = true
	o.gen++ // invalidate in-flight callbacks, timers, and poll results

	o.stopTimeout()
	if o.retry != nil {
		o.retry.Stop()
		o.retry = nil
	}
	if o.stopPoll != nil {
		o.stopPoll()
		o.stopPoll = nil
	}
	if o.transport != nil {
		if err := o.transport.Close(); err != nil {
			o.log.WithError(err).Warn("transport close failed")
		}
		o.transport = nil
	}
	if o.media != nil {
		o.media.Stop()
	}
	o.sent, o.seen, o.pending = nil, nil, nil
	o.remoteSet, o.answered, o.progress = false, false, false
	o.lastOffer = ""
	o.cursor = 0

	if o.peer != "" {
		peer := o.peer
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := o.relay.Cleanup(ctx, peer); err != nil {
				o.log.WithError(err).WithField("peer", peer).Warn("relay cleanup failed")
			}
		}()
	}
}

func (o *Orchestrator) setState(s State, cause string) {
	o.stateMu.Lock()
	o.state = s
	o.cause = cause
	o.stateMu.Unlock()
}
