package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
)

// PionTransport adapts a pion PeerConnection to the Transport interface.
// Offers and answers travel as JSON-encoded session descriptions; candidates
// as JSON-encoded ICECandidateInit, which doubles as the normalized form the
// dedup sets key on.
type PionTransport struct {
	pc *webrtc.PeerConnection
}

// NewPionFactory returns a TransportFactory that builds PeerConnections with
// the given ICE servers and attaches audio's local tracks.
func NewPionFactory(audio *AudioSource, iceServers []webrtc.ICEServer) TransportFactory {
	return func(opts TransportOptions, events TransportEvents) (Transport, error) {
		cfg := webrtc.Configuration{ICEServers: iceServers}
		if opts.RelayOnly {
			cfg.ICETransportPolicy = webrtc.ICETransportPolicyRelay
		}

		pc, err := webrtc.NewPeerConnection(cfg)
		if err != nil {
			return nil, fmt.Errorf("new peer connection: %w", err)
		}

		for _, track := range audio.Tracks() {
			if _, err := pc.AddTrack(track); err != nil {
				_ = pc.Close()
				return nil, fmt.Errorf("add track: %w", err)
			}
		}

		pc.OnICECandidate(func(c *webrtc.ICECandidate) {
			if c == nil || events.OnLocalCandidate == nil {
				return
			}
			data, err := json.Marshal(c.ToJSON())
			if err != nil {
				return
			}
			events.OnLocalCandidate(string(data))
		})
		pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
			if events.OnConnectionState != nil {
				events.OnConnectionState(state.String())
			}
		})
		pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
			if events.OnICEState != nil {
				events.OnICEState(state.String())
			}
		})
		pc.OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver) {
			if events.OnTrack != nil {
				events.OnTrack()
			}
		})

		return &PionTransport{pc: pc}, nil
	}
}

func (t *PionTransport) CreateOffer(iceRestart bool) (string, error) {
	var opts *webrtc.OfferOptions
	if iceRestart {
		opts = &webrtc.OfferOptions{ICERestart: true}
	}
	offer, err := t.pc.CreateOffer(opts)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	return marshalDescription(offer)
}

func (t *PionTransport) AcceptOffer(offer string) (string, error) {
	desc, err := unmarshalDescription(offer)
	if err != nil {
		return "", err
	}
	if err := t.pc.SetRemoteDescription(desc); err != nil {
		return "", fmt.Errorf("set remote description: %w", err)
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	return marshalDescription(answer)
}

func (t *PionTransport) AcceptAnswer(answer string) error {
	desc, err := unmarshalDescription(answer)
	if err != nil {
		return err
	}
	if err := t.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (t *PionTransport) AddRemoteCandidate(candidate string) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(candidate), &init); err != nil {
		return fmt.Errorf("decode candidate: %w", err)
	}
	return t.pc.AddICECandidate(init)
}

func (t *PionTransport) Close() error {
	return t.pc.Close()
}

func marshalDescription(desc webrtc.SessionDescription) (string, error) {
	data, err := json.Marshal(desc)
	if err != nil {
		return "", fmt.Errorf("encode description: %w", err)
	}
	return string(data), nil
}

func unmarshalDescription(raw string) (webrtc.SessionDescription, error) {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal([]byte(raw), &desc); err != nil {
		return desc, fmt.Errorf("decode description: %w", err)
	}
	return desc, nil
}

// AudioSource is the local media for a voice session: one opus track fed by
// whatever capture pipeline the host application wires in. Acquire stands in
// for the user permission prompt.
type AudioSource struct {
	mu     sync.Mutex
	tracks []webrtc.TrackLocal
}

func NewAudioSource() *AudioSource {
	return &AudioSource{}
}

func (a *AudioSource) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "voice-match",
	)
	if err != nil {
		return fmt.Errorf("create audio track: %w", err)
	}

	a.mu.Lock()
	a.tracks = []webrtc.TrackLocal{track}
	a.mu.Unlock()
	return nil
}

func (a *AudioSource) Tracks() []webrtc.TrackLocal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]webrtc.TrackLocal(nil), a.tracks...)
}

// Stop releases the local tracks. Safe to call repeatedly.
func (a *AudioSource) Stop() {
	a.mu.Lock()
	a.tracks = nil
	a.mu.Unlock()
}
