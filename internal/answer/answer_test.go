package answer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	calls int
	last  Request
	text  string
	err   error
	wait  bool
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Complete(ctx context.Context, req Request) (string, error) {
	s.calls++
	s.last = req
	if s.wait {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return s.text, s.err
}

func TestAssistantPrompt(t *testing.T) {
	p := &stubProvider{text: "Trains leave every hour."}
	a := NewAssistant(p, DefaultConfig(), DefaultPages)

	got, err := a.Answer(context.Background(), "when is the next train?")
	require.NoError(t, err)
	assert.Equal(t, "Trains leave every hour.", got)

	assert.Equal(t, "when is the next train?", p.last.Prompt)
	assert.Equal(t, 0.7, p.last.Temperature)
	assert.Equal(t, 800, p.last.MaxTokens)
	assert.Contains(t, p.last.System, "PNR status: check a booking by its 10-digit PNR (/pnr)")
	assert.Contains(t, p.last.System, "do NOT emit navigation")
}

func TestAssistantStationAndDirections(t *testing.T) {
	p := &stubProvider{text: "ok"}
	a := NewAssistant(p, DefaultConfig(), nil)

	_, err := a.StationInfo(context.Background(), "Howrah")
	require.NoError(t, err)
	assert.Contains(t, p.last.Prompt, "Howrah railway station")

	_, err = a.Directions(context.Background(), "platform 1", "the waiting room")
	require.NoError(t, err)
	assert.Contains(t, p.last.Prompt, "from platform 1 to the waiting room")
}

func TestAssistantTimeout(t *testing.T) {
	p := &stubProvider{wait: true}
	cfg := DefaultConfig()
	cfg.Timeout = 10 * time.Millisecond
	a := NewAssistant(p, cfg, nil)

	_, err := a.Answer(context.Background(), "anything")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBreakerOpens(t *testing.T) {
	p := &stubProvider{err: errors.New("503")}
	b := NewBreaker(p, time.Minute)

	for i := 0; i < 3; i++ {
		_, err := b.Complete(context.Background(), Request{Prompt: "q"})
		require.Error(t, err)
	}
	_, err := b.Complete(context.Background(), Request{Prompt: "q"})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, p.calls)
}

func TestBreakerPassesThrough(t *testing.T) {
	b := NewBreaker(&stubProvider{text: "fine"}, time.Minute)

	got, err := b.Complete(context.Background(), Request{Prompt: "q"})
	require.NoError(t, err)
	assert.Equal(t, "fine", got)
	assert.Equal(t, "stub", b.Name())
}

func TestGeminiComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, ":generateContent"), r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body, "systemInstruction")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Platform 3. [NAVIGATION:/map]"}]}}]}`))
	}))
	defer srv.Close()

	g, err := NewGemini(context.Background(), ProviderConfig{APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)

	got, err := g.Complete(context.Background(), Request{System: "sys", Prompt: "where?", Temperature: 0.7, MaxTokens: 100})
	require.NoError(t, err)
	assert.Equal(t, "Platform 3. [NAVIGATION:/map]", got)
}

func TestGeminiMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	g, err := NewGemini(context.Background(), ProviderConfig{APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)

	_, err = g.Complete(context.Background(), Request{Prompt: "where?"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-5-nano",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Hello traveller"}}]}`))
	}))
	defer srv.Close()

	o, err := NewOpenAI(ProviderConfig{APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)

	got, err := o.Complete(context.Background(), Request{System: "sys", Prompt: "hi", MaxTokens: 50})
	require.NoError(t, err)
	assert.Equal(t, "Hello traveller", got)
}

func TestOpenAIServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	o, err := NewOpenAI(ProviderConfig{APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)

	_, err = o.Complete(context.Background(), Request{Prompt: "hi"})
	assert.Error(t, err)
}

func TestProvidersRequireKey(t *testing.T) {
	_, err := NewGemini(context.Background(), ProviderConfig{})
	assert.Error(t, err)
	_, err = NewOpenAI(ProviderConfig{})
	assert.Error(t, err)
}
