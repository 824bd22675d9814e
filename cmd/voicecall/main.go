// voicecall is a headless demo client: it logs in, heartbeats, joins the
// waiting pool, and drives the connection orchestrator through a full
// handshake. Run one instance with -answer <identity> to take the callee
// side of a match started by another instance.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"github.com/mossy-p/voice-match/internal/orchestrator"
	"github.com/mossy-p/voice-match/internal/relayclient"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "voice-match server base URL")
	username := flag.String("user", "demo", "login username")
	answer := flag.String("answer", "", "answer a call from this identity instead of dialing")
	relayOnly := flag.Bool("relay-only", false, "restrict ICE to relay (TURN) candidates")
	stun := flag.String("stun", "stun:stun.l.google.com:19302", "STUN server URL")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	token, identity, err := login(ctx, *server, *username)
	if err != nil {
		logrus.WithError(err).Fatal("login failed")
	}
	logrus.WithField("identity", identity).Info("logged in")

	client := relayclient.New(*server, token)

	if err := client.Heartbeat(ctx); err != nil {
		logrus.WithError(err).Fatal("heartbeat failed")
	}
	go heartbeatLoop(ctx, client)

	if err := client.Join(ctx); err != nil {
		logrus.WithError(err).Fatal("join failed")
	}
	defer client.Leave(context.Background())

	var peer string
	initiator := false
	if *answer != "" {
		peer = *answer
	} else {
		peer, err = waitForPeer(ctx, client)
		if err != nil {
			logrus.WithError(err).Fatal("matchmaking failed")
		}
		if _, err := client.Pair(ctx, peer); err != nil {
			logrus.WithError(err).Fatal("pair failed")
		}
		initiator = true
	}
	logrus.WithFields(logrus.Fields{"peer": peer, "initiator": initiator}).Info("matched")

	audio := orchestrator.NewAudioSource()
	factory := orchestrator.NewPionFactory(audio, []webrtc.ICEServer{{URLs: []string{*stun}}})
	orc := orchestrator.New(orchestrator.Config{RelayOnly: *relayOnly}, client, audio, factory)
	defer orc.Shutdown()

	orc.Connect(peer, initiator)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			orc.Disconnect()
			_ = client.Terminate(context.Background(), peer)
			return
		case <-ticker.C:
			switch orc.State() {
			case orchestrator.StateConnected:
				logrus.Info("voice session established")
			case orchestrator.StateError:
				logrus.WithField("cause", orc.Cause()).Error("session failed")
				return
			}
		}
	}
}

func login(ctx context.Context, server, username string) (token, identity string, err error) {
	body, _ := json.Marshal(map[string]string{"username": username, "password": "demo"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("login: status %d", resp.StatusCode)
	}

	var out struct {
		Token    string `json:"token"`
		Identity string `json:"identity"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", err
	}
	return out.Token, out.Identity, nil
}

func heartbeatLoop(ctx context.Context, client *relayclient.Client) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(ctx); err != nil && ctx.Err() == nil {
				logrus.WithError(err).Warn("heartbeat failed")
			}
		}
	}
}

func waitForPeer(ctx context.Context, client *relayclient.Client) (string, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		peer, err := client.FindPeer(ctx)
		if err != nil {
			return "", err
		}
		if peer != "" {
			return peer, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}
