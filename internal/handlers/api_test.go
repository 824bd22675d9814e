package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/voice-match/internal/clock"
	"github.com/mossy-p/voice-match/internal/matchmaking"
	"github.com/mossy-p/voice-match/internal/middleware"
	"github.com/mossy-p/voice-match/internal/models"
	"github.com/mossy-p/voice-match/internal/presence"
	"github.com/mossy-p/voice-match/internal/profile"
	"github.com/mossy-p/voice-match/internal/signaling"
	"github.com/mossy-p/voice-match/internal/syncstate"
)

const testJWTSecret = "api-test-secret"

type testServer struct {
	router   *gin.Engine
	profiles *profile.Static
	tracker  *presence.Tracker
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := clock.System{}
	profiles := profile.NewStatic()
	tracker := presence.NewTracker(clk, profiles, nil, 300*time.Second, 24*time.Hour)
	signals := signaling.NewStore(clk, profiles, tracker, nil)
	syncs := syncstate.NewStore(clk, profiles, tracker, nil)
	match := matchmaking.NewManager(clk, profiles, tracker, nil, 300*time.Second, signals, syncs)

	api := &API{
		JWTSecret: testJWTSecret,
		Presence:  tracker,
		Match:     match,
		Signals:   signals,
		Syncs:     syncs,
		Profiles:  profiles,
	}

	router := gin.New()
	auth := middleware.IdentityAuth(testJWTSecret)
	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/auth/login", api.Login)

		apiGroup.POST("/pool/join", auth, api.Join)
		apiGroup.POST("/pool/leave", auth, api.Leave)
		apiGroup.GET("/pool/status", auth, api.PoolStatus)
		apiGroup.GET("/pool/peer", auth, api.FindPeer)
		apiGroup.POST("/pool/pair", auth, api.Pair)
		apiGroup.POST("/pool/next", auth, api.NextPeer)
		apiGroup.POST("/pool/terminate", auth, api.Terminate)

		apiGroup.POST("/presence/heartbeat", auth, api.Heartbeat)
		apiGroup.GET("/presence/active", api.ActiveCount)
		apiGroup.POST("/presence/purge", auth, api.Purge)

		apiGroup.POST("/signal/:peer/offer", auth, api.CreateOffer)
		apiGroup.POST("/signal/:peer/answer", auth, api.SendAnswer)
		apiGroup.POST("/signal/:peer/candidate", auth, api.ExchangeCandidate)
		apiGroup.GET("/signal/:peer", auth, api.SignalingState)
		apiGroup.DELETE("/signal/:peer", auth, api.CleanupSignaling)

		apiGroup.PUT("/sync/:peer", auth, api.SetSyncState)
		apiGroup.GET("/sync/:peer", auth, api.GetSyncState)
		apiGroup.DELETE("/sync/:peer", auth, api.CleanupSync)
	}

	return &testServer{router: router, profiles: profiles, tracker: tracker}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

// login mints a participant and returns its token and identity.
func (s *testServer) login(t *testing.T) (token, identity string) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"username": "anyone", "password": "anything"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	return body["token"].(string), body["identity"].(string)
}

// participant logs in and sends a first heartbeat so the identity is active.
func (s *testServer) participant(t *testing.T) (token, identity string) {
	t.Helper()
	token, identity = s.login(t)
	w := s.do(t, http.MethodPost, "/api/presence/heartbeat", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return token, identity
}

func TestLogin_IssuesUsableToken(t *testing.T) {
	s := newTestServer(t)
	token, identity := s.login(t)

	parsed, err := middleware.ParseIdentity(token, testJWTSecret)
	require.NoError(t, err)
	assert.Equal(t, identity, parsed)

	// The fresh identity is onboarded and can heartbeat straight away.
	w := s.do(t, http.MethodPost, "/api/presence/heartbeat", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProtectedRoutesRejectMissingToken(t *testing.T) {
	s := newTestServer(t)
	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/api/pool/join"},
		{http.MethodGet, "/api/pool/peer"},
		{http.MethodPost, "/api/presence/heartbeat"},
		{http.MethodGet, "/api/signal/bob"},
	} {
		w := s.do(t, route.method, route.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", route.method, route.path)
	}
}

func TestActiveCount_IsPublic(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/presence/active", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode(t, w)["active"])

	s.participant(t)
	w = s.do(t, http.MethodGet, "/api/presence/active", "", nil)
	assert.EqualValues(t, 1, decode(t, w)["active"])
}

func TestMatchmakingFlow(t *testing.T) {
	s := newTestServer(t)
	aliceTok, alice := s.participant(t)
	bobTok, bob := s.participant(t)

	// Nobody else waiting yet: a null peer, not an error.
	w := s.do(t, http.MethodPost, "/api/pool/join", aliceTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodGet, "/api/pool/peer", aliceTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode(t, w)["peer"])

	w = s.do(t, http.MethodPost, "/api/pool/join", bobTok, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/pool/status", bobTok, nil)
	assert.Equal(t, true, decode(t, w)["inPool"])

	w = s.do(t, http.MethodGet, "/api/pool/peer", aliceTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, bob, decode(t, w)["peer"])

	w = s.do(t, http.MethodPost, "/api/pool/pair", aliceTok, gin.H{"peer": bob})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.PairKey(alice, bob), decode(t, w)["pairingKey"])

	// Pairing consumed both pool entries.
	w = s.do(t, http.MethodGet, "/api/pool/status", bobTok, nil)
	assert.Equal(t, false, decode(t, w)["inPool"])

	w = s.do(t, http.MethodPost, "/api/pool/terminate", aliceTok, gin.H{"peer": bob})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestFindPeer_RequiresPoolMembership(t *testing.T) {
	s := newTestServer(t)
	tok, _ := s.participant(t)

	w := s.do(t, http.MethodGet, "/api/pool/peer", tok, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "not_in_pool", decode(t, w)["code"])
}

func TestJoin_RequiresRecentHeartbeat(t *testing.T) {
	s := newTestServer(t)
	tok, _ := s.login(t) // onboarded but never active

	w := s.do(t, http.MethodPost, "/api/pool/join", tok, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "not_active", decode(t, w)["code"])
}

func TestSignalingFlow(t *testing.T) {
	s := newTestServer(t)
	aliceTok, alice := s.participant(t)
	bobTok, bob := s.participant(t)

	// Answering before any offer exists is a precondition failure.
	w := s.do(t, http.MethodPost, "/api/signal/"+alice+"/answer", bobTok, gin.H{"payload": "early-answer"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "no_offer_found", decode(t, w)["code"])

	w = s.do(t, http.MethodPost, "/api/signal/"+bob+"/offer", aliceTok, gin.H{"payload": "the-offer"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/signal/"+alice+"/answer", bobTok, gin.H{"payload": "the-answer"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/signal/"+bob+"/candidate", aliceTok, gin.H{"payload": "cand-1"})
	require.Equal(t, http.StatusOK, w.Code)

	// Both orderings of the pair read the same session.
	for _, tc := range []struct{ tok, peer string }{{aliceTok, bob}, {bobTok, alice}} {
		w = s.do(t, http.MethodGet, "/api/signal/"+tc.peer, tc.tok, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var out struct {
			Session *models.SignalingSession `json:"session"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		require.NotNil(t, out.Session)
		assert.Equal(t, "the-offer", out.Session.Offer)
		assert.Equal(t, "the-answer", out.Session.Answer)
		assert.Equal(t, []string{"cand-1"}, out.Session.Candidates)
	}

	w = s.do(t, http.MethodDelete, "/api/signal/"+bob, aliceTok, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/signal/"+alice, bobTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode(t, w)["session"])
}

func TestOfferToSelfIsRejected(t *testing.T) {
	s := newTestServer(t)
	tok, self := s.participant(t)

	w := s.do(t, http.MethodPost, "/api/signal/"+self+"/offer", tok, gin.H{"payload": "x"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "invalid_peer", decode(t, w)["code"])
}

func TestSyncFlow(t *testing.T) {
	s := newTestServer(t)
	aliceTok, alice := s.participant(t)
	bobTok, bob := s.participant(t)

	w := s.do(t, http.MethodGet, "/api/sync/"+bob, aliceTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode(t, w)["state"])

	w = s.do(t, http.MethodPut, "/api/sync/"+bob, aliceTok, models.SyncState{
		MediaID: "track-7", Position: 12.5, IsPlaying: true, Version: 3,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The peer reads the same document through its own key ordering.
	w = s.do(t, http.MethodGet, "/api/sync/"+alice, bobTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		State *models.SyncState `json:"state"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.NotNil(t, out.State)
	assert.Equal(t, "track-7", out.State.MediaID)
	assert.EqualValues(t, 3, out.State.Version)

	w = s.do(t, http.MethodDelete, "/api/sync/"+alice, bobTok, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPurge_RequiresAdmin(t *testing.T) {
	s := newTestServer(t)
	tok, identity := s.participant(t)

	w := s.do(t, http.MethodPost, "/api/presence/purge", tok, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "unauthorized", decode(t, w)["code"])

	s.profiles.GrantRole(identity, presence.RoleAdmin)
	w = s.do(t, http.MethodPost, "/api/presence/purge", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode(t, w)["purged"])
}
