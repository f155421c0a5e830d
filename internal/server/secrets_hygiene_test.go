package server_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/HerbHall/llmrelay/internal/llm/openai"
	"github.com/HerbHall/llmrelay/internal/server"
	"github.com/HerbHall/llmrelay/internal/testutil"
	"github.com/HerbHall/llmrelay/internal/ws"
	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const hygieneKey = "sk-hygiene-4f1c2d9e8b7a6c5d"

// =============================================================================
// Test Infrastructure
// =============================================================================

// relayEnv wires the full stack against a fake upstream: middleware chain,
// relay handler and the OpenAI provider.
type relayEnv struct {
	wsURL string
	logs  *observer.ObservedLogs
}

func newRelayEnv(t *testing.T, upstream http.HandlerFunc, debugBodies bool) *relayEnv {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	up := testutil.NewOpenAIServer(t, upstream)

	cfg := openai.DefaultConfig()
	cfg.BaseURL = up.URL
	cfg.Timeout = 5 * time.Second
	cfg.DebugBodies = debugBodies
	provider, err := openai.New(cfg, hygieneKey, logger)
	if err != nil {
		t.Fatalf("openai.New: %v", err)
	}

	reg := prometheus.NewRegistry()
	relay, err := ws.NewHandler(ws.DefaultConfig(), provider, ws.NewMetrics(reg), logger)
	if err != nil {
		t.Fatalf("ws.NewHandler: %v", err)
	}

	srv := server.New(server.DefaultConfig(), logger, reg, relay.Ready, relay)
	front := httptest.NewServer(srv.Handler())
	t.Cleanup(front.Close)

	return &relayEnv{
		wsURL: "ws" + strings.TrimPrefix(front.URL, "http"),
		logs:  logs,
	}
}

// roundTrip sends one prompt over a fresh relay connection and returns the reply.
func (e *relayEnv) roundTrip(t *testing.T, prompt string) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, e.wsURL, nil)
	if err != nil {
		t.Fatalf("dial through middleware chain: %v", err)
	}
	defer conn.CloseNow() //nolint:errcheck

	if err := conn.Write(ctx, websocket.MessageText, []byte(prompt)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	conn.Close(websocket.StatusNormalClosure, "") //nolint:errcheck
	return string(data)
}

// containsSecret checks if any log entry contains the secret string.
func containsSecret(logs *observer.ObservedLogs, secret string) bool {
	entries := logs.All()
	for i := range entries {
		// Check the message itself.
		if strings.Contains(entries[i].Message, secret) {
			return true
		}
		// Check all field values.
		for j := range entries[i].Context {
			if strings.Contains(entries[i].Context[j].String, secret) {
				return true
			}
			// Check interface values (like errors).
			if entries[i].Context[j].Interface != nil {
				if s, ok := entries[i].Context[j].Interface.(string); ok && strings.Contains(s, secret) {
					return true
				}
				if err, ok := entries[i].Context[j].Interface.(error); ok && strings.Contains(err.Error(), secret) {
					return true
				}
			}
		}
	}
	return false
}

// echoAuthHeader replies with status and a body that repeats the caller's
// Authorization header, like a misbehaving proxy might.
func echoAuthHeader(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"error":{"message":"rejected `+r.Header.Get("Authorization")+`","type":"invalid_request_error"}}`)
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestAPIKeyNotInLogsOrReplies(t *testing.T) {
	tests := []struct {
		name     string
		upstream http.HandlerFunc
	}{
		{name: "unauthorized", upstream: echoAuthHeader(http.StatusUnauthorized)},
		{name: "server error", upstream: echoAuthHeader(http.StatusInternalServerError)},
		{name: "bad request", upstream: echoAuthHeader(http.StatusBadRequest)},
		{
			name: "malformed body",
			upstream: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = io.WriteString(w, "not json "+r.Header.Get("Authorization"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newRelayEnv(t, tt.upstream, false)

			reply := env.roundTrip(t, "hello")

			if reply != ws.ErrorReply {
				t.Errorf("reply = %q, want %q", reply, ws.ErrorReply)
			}
			if strings.Contains(reply, hygieneKey) {
				t.Error("API key leaked to the client")
			}
			if containsSecret(env.logs, hygieneKey) {
				t.Error("API key found in logs")
			}
		})
	}
}

func TestUpstreamBodiesOnlyLoggedWithDebugFlag(t *testing.T) {
	const marker = "distinctive-upstream-payload"
	upstream := testutil.ReplyWith(marker)

	t.Run("flag off", func(t *testing.T) {
		env := newRelayEnv(t, upstream, false)
		if reply := env.roundTrip(t, "hi"); reply != "OpenAI: "+marker {
			t.Fatalf("reply = %q", reply)
		}
		if containsSecret(env.logs, marker) {
			t.Error("upstream body logged without the debug flag")
		}
	})

	t.Run("flag on", func(t *testing.T) {
		env := newRelayEnv(t, upstream, true)
		env.roundTrip(t, "hi")
		if !containsSecret(env.logs, marker) {
			t.Error("expected upstream body in debug logs")
		}
		if containsSecret(env.logs, hygieneKey) {
			t.Error("API key found in debug logs")
		}
	})
}

func TestUpgradeThroughMiddlewareIsLogged(t *testing.T) {
	env := newRelayEnv(t, echoAuthHeader(http.StatusOK), false)
	env.roundTrip(t, "hi")

	// The access log entry is written once the upgraded connection ends.
	deadline := time.Now().Add(5 * time.Second)
	for {
		found := false
		for _, e := range env.logs.FilterMessage("http request").All() {
			if e.ContextMap()["status"] == int64(http.StatusSwitchingProtocols) {
				found = true
			}
		}
		if found {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("no access log entry with status 101")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
