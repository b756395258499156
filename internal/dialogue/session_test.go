package dialogue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"sahyatri/internal/navigate"
	"sahyatri/internal/speech"
	"sahyatri/pkg/intent"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeAnswerer struct {
	text  string
	err   error
	gate  chan struct{}
	calls int
	mu    sync.Mutex
}

func (f *fakeAnswerer) Answer(ctx context.Context, _ string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

type fakeSynth struct {
	mu     sync.Mutex
	spoken []string
}

func (f *fakeSynth) Voices() []speech.Voice { return nil }

func (f *fakeSynth) Speak(ctx context.Context, u speech.Utterance) error {
	f.mu.Lock()
	f.spoken = append(f.spoken, u.Text)
	f.mu.Unlock()
	return nil
}

func (f *fakeSynth) said() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

type routerLog struct {
	mu    sync.Mutex
	paths []string
}

func (r *routerLog) Navigate(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return nil
}

func (r *routerLog) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

type observerLog struct {
	mu      sync.Mutex
	loading []bool
	voice   []bool
	msgs    int
}

func (o *observerLog) MessageAppended(Message) {
	o.mu.Lock()
	o.msgs++
	o.mu.Unlock()
}

func (o *observerLog) LoadingChanged(v bool) {
	o.mu.Lock()
	o.loading = append(o.loading, v)
	o.mu.Unlock()
}

func (o *observerLog) VoiceChanged(v bool) {
	o.mu.Lock()
	o.voice = append(o.voice, v)
	o.mu.Unlock()
}

type fixture struct {
	session *Session
	synth   *fakeSynth
	speaker *speech.Adapter
	router  *routerLog
	nav     *navigate.Effector
}

func newFixture(t *testing.T, answerer Answerer, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{synth: &fakeSynth{}, router: &routerLog{}}
	f.speaker = speech.NewAdapter(speech.DefaultConfig(), nil, f.synth)
	f.nav = navigate.NewEffector(f.router, nil)
	t.Cleanup(func() {
		f.nav.Close()
		f.speaker.Close()
	})

	cfg := DefaultConfig()
	cfg.NavigateDelay = 10 * time.Millisecond
	cfg.ProviderNavigateDelay = 20 * time.Millisecond

	opts = append([]Option{WithSpeaker(f.speaker), WithNavigator(f.nav)}, opts...)
	if answerer != nil {
		opts = append(opts, WithAnswerer(answerer))
	}
	f.session = NewSession(cfg, intent.NewMatcher(intent.DefaultRoutes(), intent.DefaultFaqs()), opts...)
	return f
}

func TestSubmitBlankAppendsNothing(t *testing.T) {
	f := newFixture(t, &fakeAnswerer{text: "unused"})

	require.NoError(t, f.session.Submit(context.Background(), ""))
	require.NoError(t, f.session.Submit(context.Background(), "   \t"))

	assert.Empty(t, f.session.Messages())
	assert.False(t, f.session.Loading())
}

func TestSubmitNavigation(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.session.Submit(context.Background(), "Show me the train map"))

	msgs := f.session.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "Show me the train map", msgs[0].Text)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Taking you to map page.", msgs[1].Text)
	assert.True(t, msgs[1].IsNavigationTrigger)
	assert.Equal(t, "/map", msgs[1].DestinationPath)

	require.Eventually(t, func() bool { return len(f.router.got()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, []string{"/map"}, f.router.got())
	assert.Contains(t, f.synth.said(), "Taking you to map page.")
}

func TestSubmitCanned(t *testing.T) {
	f := newFixture(t, &fakeAnswerer{err: errors.New("must not be called")})

	require.NoError(t, f.session.Submit(context.Background(), "what is sahyatri"))

	msgs := f.session.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, intent.DefaultFaqs().Faqs()[1].Answer, msgs[1].Text)
	assert.False(t, msgs[1].IsNavigationTrigger)
}

func TestMuteSilencesLaterAnswers(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.session.Submit(ctx, "be quiet"))
	assert.False(t, f.speaker.VoiceEnabled())

	require.NoError(t, f.session.Submit(ctx, "what is sahyatri"))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, f.synth.said())

	msgs := f.session.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, VoiceDisabledText, msgs[1].Text)
}

func TestUnmuteAnnounces(t *testing.T) {
	obs := &observerLog{}
	f := newFixture(t, nil, WithObserver(obs))
	ctx := context.Background()

	require.NoError(t, f.session.Submit(ctx, "mute"))
	require.NoError(t, f.session.Submit(ctx, "unmute"))
	assert.True(t, f.speaker.VoiceEnabled())

	require.Eventually(t, func() bool { return len(f.synth.said()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{VoiceAnnounceText}, f.synth.said())
	assert.Equal(t, VoiceEnabledText, f.session.Messages()[3].Text)
	assert.Equal(t, []bool{false, true}, obs.voice)
}

func TestProviderFailureAlwaysOneMessage(t *testing.T) {
	f := newFixture(t, &fakeAnswerer{err: errors.New("503 service unavailable")})
	ctx := context.Background()

	questions := []string{"tell me a joke", "why is the sky blue", "what is the capital of france"}
	for _, q := range questions {
		require.NoError(t, f.session.Submit(ctx, q))
	}

	msgs := f.session.Messages()
	require.Len(t, msgs, 2*len(questions))
	for i := range questions {
		assert.Equal(t, questions[i], msgs[2*i].Text)
		assert.Equal(t, ProviderFailureText, msgs[2*i+1].Text)
		assert.Equal(t, RoleAssistant, msgs[2*i+1].Role)
	}
	assert.False(t, f.session.Loading())
}

func TestProviderMarkerNavigates(t *testing.T) {
	f := newFixture(t, &fakeAnswerer{text: "Let me open your bookings. [NAVIGATION:/pnr]"})

	require.NoError(t, f.session.Submit(context.Background(), "where are my tickets kept?"))

	msgs := f.session.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Let me open your bookings.", msgs[1].Text)
	assert.True(t, msgs[1].IsNavigationTrigger)
	assert.Equal(t, "/pnr", msgs[1].DestinationPath)

	require.Eventually(t, func() bool { return len(f.router.got()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"/pnr"}, f.router.got())
}

func TestProviderPlainAnswer(t *testing.T) {
	f := newFixture(t, &fakeAnswerer{text: "The Rajdhani runs daily."})

	require.NoError(t, f.session.Submit(context.Background(), "does the rajdhani run daily?"))

	msgs := f.session.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "The Rajdhani runs daily.", msgs[1].Text)
	assert.False(t, msgs[1].IsNavigationTrigger)
	assert.Empty(t, f.router.got())
}

func TestNoAnswererUsesLocalReply(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.session.Submit(context.Background(), "tell me a joke"))
	assert.Equal(t, NotUnderstoodText, f.session.Messages()[1].Text)
}

func TestSubmitsAreQueued(t *testing.T) {
	ans := &fakeAnswerer{text: "answer", gate: make(chan struct{})}
	f := newFixture(t, ans)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.session.Submit(ctx, "tell me a joke")
	}()
	require.Eventually(t, func() bool { return len(f.session.Messages()) == 1 }, time.Second, time.Millisecond)
	assert.True(t, f.session.Loading())

	second := make(chan struct{})
	go func() {
		defer close(second)
		_ = f.session.Submit(ctx, "take me to the pnr page")
	}()

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, f.session.Messages(), 1)

	close(ans.gate)
	<-done
	<-second

	msgs := f.session.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "tell me a joke", msgs[0].Text)
	assert.Equal(t, "answer", msgs[1].Text)
	assert.Equal(t, "take me to the pnr page", msgs[2].Text)
	assert.Equal(t, "/pnr", msgs[3].DestinationPath)
}

func TestSubmitWaitHonoursContext(t *testing.T) {
	ans := &fakeAnswerer{text: "answer", gate: make(chan struct{})}
	f := newFixture(t, ans)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.session.Submit(context.Background(), "tell me a joke")
	}()
	require.Eventually(t, func() bool { return f.session.Loading() }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := f.session.Submit(ctx, "second question")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(ans.gate)
	<-done
	assert.Len(t, f.session.Messages(), 2)
}

func TestLoadingToggles(t *testing.T) {
	obs := &observerLog{}
	f := newFixture(t, &fakeAnswerer{err: errors.New("down")}, WithObserver(obs))

	require.NoError(t, f.session.Submit(context.Background(), "tell me a joke"))
	assert.Equal(t, []bool{true, false}, obs.loading)
	assert.Equal(t, 2, obs.msgs)
}

func TestGreeting(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Greeting = "Hi there!"
	s := NewSession(cfg, intent.NewMatcher(nil, nil))

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, RoleAssistant, msgs[0].Role)
	assert.NotEmpty(t, s.ID)
}
