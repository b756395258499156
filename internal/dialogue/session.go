package dialogue

import (
	"context"
	"fmt"
	log "log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sahyatri/internal/navigate"
	"sahyatri/pkg/intent"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation history.
type Message struct {
	ID                  string    `json:"id"`
	Role                Role      `json:"role"`
	Text                string    `json:"text"`
	IsNavigationTrigger bool      `json:"isNavigationTrigger,omitempty"`
	DestinationPath     string    `json:"destinationPath,omitempty"`
	At                  time.Time `json:"at"`
}

const (
	ProviderFailureText = "I'm sorry, I couldn't process your request right now. Please try asking a simple question about train travel, checking PNR status, or navigating stations. You can also try navigation commands like 'Take me to the PNR page'."
	NotUnderstoodText   = "I'm not sure about that. You can ask me to navigate to different parts of the app like 'Go to map' or 'Show me the route planner'."
	VoiceEnabledText    = "Voice output is now enabled. I'll speak my responses."
	VoiceDisabledText   = "Voice output is now disabled. I'll stay silent."
	VoiceAnnounceText   = "Voice output enabled."
)

// Answerer is the external question-answering fallback.
type Answerer interface {
	Answer(ctx context.Context, question string) (string, error)
}

// Speaker is the voice output side of the speech adapter.
type Speaker interface {
	Speak(text string)
	SetVoiceEnabled(enable bool)
	VoiceEnabled() bool
}

// Navigator schedules delayed redirects.
type Navigator interface {
	Schedule(path string, delay time.Duration) *navigate.Handle
}

// Observer is notified of session changes. Calls are made outside the
// session lock, in the order the changes happened.
type Observer interface {
	MessageAppended(Message)
	LoadingChanged(loading bool)
	VoiceChanged(enabled bool)
}

type Config struct {
	Greeting string
	// NavigateDelay applies to matched navigation commands,
	// ProviderNavigateDelay to markers found in provider answers.
	NavigateDelay         time.Duration
	ProviderNavigateDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		NavigateDelay:         1500 * time.Millisecond,
		ProviderNavigateDelay: 2000 * time.Millisecond,
	}
}

// Session holds one conversation. Submits are processed one at a time in
// arrival order.
type Session struct {
	ID string

	cfg      Config
	matcher  *intent.Matcher
	answerer Answerer
	speaker  Speaker
	nav      Navigator
	observer Observer

	turn chan struct{}

	mu       sync.Mutex
	messages []Message
	loading  bool
}

type Option func(*Session)

func WithAnswerer(a Answerer) Option   { return func(s *Session) { s.answerer = a } }
func WithSpeaker(sp Speaker) Option    { return func(s *Session) { s.speaker = sp } }
func WithNavigator(n Navigator) Option { return func(s *Session) { s.nav = n } }
func WithObserver(o Observer) Option   { return func(s *Session) { s.observer = o } }

func NewSession(cfg Config, matcher *intent.Matcher, opts ...Option) *Session {
	s := &Session{
		ID:      uuid.NewString(),
		cfg:     cfg,
		matcher: matcher,
		turn:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.Greeting != "" {
		s.messages = append(s.messages, newMessage(RoleAssistant, cfg.Greeting))
	}
	return s
}

// Messages returns a copy of the history in display order.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Submit processes one utterance, typed or transcribed. Blank input is
// ignored. Otherwise exactly one user message and one assistant message are
// appended. Provider failures never surface as errors; the only error is ctx
// ending while waiting for an earlier submit to finish.
func (s *Session) Submit(ctx context.Context, input string) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}

	if err := s.acquireTurn(ctx); err != nil {
		return err
	}
	defer s.releaseTurn()

	s.append(newMessage(RoleUser, input))
	s.respond(ctx, input)
	return nil
}

func (s *Session) acquireTurn(ctx context.Context) error {
	select {
	case s.turn <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for turn: %w", ctx.Err())
	}
}

func (s *Session) releaseTurn() { <-s.turn }

// respond appends the assistant reply to input. The caller holds the turn
// and has already recorded the user message.
func (s *Session) respond(ctx context.Context, input string) {
	s.setLoading(true)
	defer s.setLoading(false)

	switch r := s.matcher.Resolve(input).(type) {
	case intent.VoiceControl:
		s.applyVoiceControl(r.Enable)
	case intent.Navigation:
		s.navigateTo(fmt.Sprintf("Taking you to %s page.", r.Destination), r.Path, s.cfg.NavigateDelay)
	case intent.Canned:
		s.reply(r.Text)
	default:
		s.fallback(ctx, input)
	}
}

func (s *Session) applyVoiceControl(enable bool) {
	text := VoiceDisabledText
	if enable {
		text = VoiceEnabledText
	}

	if s.speaker != nil {
		s.speaker.SetVoiceEnabled(enable)
	}
	if s.observer != nil {
		s.observer.VoiceChanged(enable)
	}
	s.append(newMessage(RoleAssistant, text))

	if enable && s.speaker != nil {
		s.speaker.Speak(VoiceAnnounceText)
	}
}

func (s *Session) navigateTo(text, path string, delay time.Duration) {
	m := newMessage(RoleAssistant, text)
	m.IsNavigationTrigger = true
	m.DestinationPath = path
	s.append(m)

	s.speak(text)
	if s.nav != nil {
		s.nav.Schedule(path, delay)
	}
}

func (s *Session) reply(text string) {
	s.append(newMessage(RoleAssistant, text))
	s.speak(text)
}

func (s *Session) fallback(ctx context.Context, input string) {
	if s.answerer == nil {
		s.reply(NotUnderstoodText)
		return
	}

	raw, err := s.answerer.Answer(ctx, input)
	if err != nil {
		log.Error("Failed to get answer", "session", s.ID, "err", err)
		s.reply(ProviderFailureText)
		return
	}

	text, path, ok := intent.ExtractNavigation(raw)
	if !ok {
		if text == "" {
			text = ProviderFailureText
		}
		s.reply(text)
		return
	}
	if text == "" {
		text = fmt.Sprintf("Taking you to %s.", path)
	}
	s.navigateTo(text, path, s.cfg.ProviderNavigateDelay)
}

func (s *Session) speak(text string) {
	if s.speaker != nil {
		s.speaker.Speak(text)
	}
}

func (s *Session) append(m Message) {
	s.mu.Lock()
	s.messages = append(s.messages, m)
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.MessageAppended(m)
	}
}

func (s *Session) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.LoadingChanged(v)
	}
}

func newMessage(role Role, text string) Message {
	return Message{
		ID:   uuid.NewString(),
		Role: role,
		Text: text,
		At:   time.Now(),
	}
}
