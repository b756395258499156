package speech

import (
	"context"
	"errors"
	log "log/slog"
	"strings"
	"sync"
	"time"
)

var ErrRecognitionUnsupported = errors.New("speech recognition not supported")

// Voice is a synthesizer voice.
type Voice struct {
	Name string
	Lang string
}

// Utterance is a single piece of text to synthesize.
type Utterance struct {
	Text   string
	Voice  *Voice
	Locale string
	Rate   float64
	Pitch  float64
	Volume float64
}

// Recognizer captures a single utterance (non-continuous, no interim
// results) and returns its final transcript.
type Recognizer interface {
	Recognize(ctx context.Context, locale string) (string, error)
}

// Synthesizer speaks text. Speak blocks until playback completes or ctx is
// cancelled.
type Synthesizer interface {
	Voices() []Voice
	Speak(ctx context.Context, u Utterance) error
}

// VoiceWatcher is implemented by synthesizers whose voice list may arrive
// after construction.
type VoiceWatcher interface {
	OnVoicesChanged(func([]Voice))
}

type Config struct {
	Locale string
	Rate   float64
	Pitch  float64
	Volume float64

	// Speaking is forced false after len(text)*SafetyPerChar (at least
	// SafetyMin) if the synthesizer never reports completion.
	SafetyPerChar time.Duration
	SafetyMin     time.Duration
}

func DefaultConfig() Config {
	return Config{
		Locale:        "en-US",
		Rate:          1.0,
		Pitch:         1.1,
		Volume:        1.0,
		SafetyPerChar: 50 * time.Millisecond,
		SafetyMin:     2 * time.Second,
	}
}

// State is a snapshot of the adapter flags.
type State struct {
	Listening    bool
	Speaking     bool
	VoiceEnabled bool
}

// Adapter owns one session's speech I/O. It keeps at most one recognition
// attempt and at most one utterance active; starting a new one supersedes
// the previous.
type Adapter struct {
	cfg Config
	rec Recognizer
	syn Synthesizer

	mu           sync.Mutex
	listenID     uint64
	listenCancel context.CancelFunc
	speakID      uint64
	speakCancel  context.CancelFunc
	safety       *time.Timer
	state        State
	voice        *Voice
	closed       bool

	onTranscript func(string)
	onState      func(State)

	wg sync.WaitGroup
}

// NewAdapter builds an adapter. rec and syn may be nil when the platform
// lacks the capability; listening then fails with ErrRecognitionUnsupported
// and speaking is a no-op.
func NewAdapter(cfg Config, rec Recognizer, syn Synthesizer) *Adapter {
	a := &Adapter{
		cfg:   cfg,
		rec:   rec,
		syn:   syn,
		state: State{VoiceEnabled: true},
	}

	if syn != nil {
		voices := syn.Voices()
		if len(voices) > 0 {
			a.voice = SelectVoice(voices)
		} else if w, ok := syn.(VoiceWatcher); ok {
			w.OnVoicesChanged(a.voicesChanged)
		}
	}

	if rec == nil {
		log.Warn("Speech recognition unavailable")
	}
	return a
}

// OnTranscript registers the receiver of final transcripts.
func (a *Adapter) OnTranscript(f func(string)) {
	a.mu.Lock()
	a.onTranscript = f
	a.mu.Unlock()
}

// OnStateChange registers a listener for flag changes.
func (a *Adapter) OnStateChange(f func(State)) {
	a.mu.Lock()
	a.onState = f
	a.mu.Unlock()
}

func (a *Adapter) CanListen() bool { return a.rec != nil }

func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Adapter) VoiceEnabled() bool {
	return a.State().VoiceEnabled
}

func (a *Adapter) Voice() *Voice {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.voice
}

// StartListening begins a single recognition attempt. The transcript is
// delivered to the OnTranscript callback.
func (a *Adapter) StartListening() error {
	if a.rec == nil {
		return ErrRecognitionUnsupported
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	if a.listenCancel != nil {
		a.listenCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.listenID++
	id := a.listenID
	a.listenCancel = cancel
	a.state.Listening = true
	st, notify := a.state, a.onState
	a.wg.Add(1)
	a.mu.Unlock()

	emit(notify, st)

	go func() {
		defer a.wg.Done()
		defer cancel()

		text, err := a.rec.Recognize(ctx, a.cfg.Locale)

		a.mu.Lock()
		current := id == a.listenID && ctx.Err() == nil
		if id == a.listenID {
			a.listenCancel = nil
			a.state.Listening = false
		}
		st, notify, deliver := a.state, a.onState, a.onTranscript
		a.mu.Unlock()

		emit(notify, st)

		if err != nil {
			if ctx.Err() == nil {
				log.Error("Speech recognition failed", "err", err)
			}
			return
		}
		if !current {
			return
		}

		text = strings.TrimSpace(text)
		if text == "" {
			log.Debug("Empty transcript")
			return
		}
		log.Info("Transcribed", "text", text)
		if deliver != nil {
			deliver(text)
		}
	}()

	return nil
}

// StopListening aborts the current attempt and discards its transcript.
func (a *Adapter) StopListening() {
	a.mu.Lock()
	if a.listenCancel != nil {
		a.listenCancel()
		a.listenCancel = nil
	}
	a.listenID++
	changed := a.state.Listening
	a.state.Listening = false
	st, notify := a.state, a.onState
	a.mu.Unlock()

	if changed {
		emit(notify, st)
	}
}

// Speak synthesizes text, cancelling any utterance in flight. It is a no-op
// while voice output is disabled.
func (a *Adapter) Speak(text string) {
	text = strings.TrimSpace(text)

	a.mu.Lock()
	if !a.state.VoiceEnabled {
		a.mu.Unlock()
		log.Debug("Voice output disabled, not speaking", "text", text)
		return
	}
	if a.syn == nil || text == "" || a.closed {
		a.mu.Unlock()
		return
	}

	a.cancelSpeakLocked()

	ctx, cancel := context.WithCancel(context.Background())
	a.speakID++
	id := a.speakID
	a.speakCancel = cancel
	a.state.Speaking = true
	a.safety = time.AfterFunc(a.safetyTimeout(text), func() { a.safetyExpired(id) })

	u := Utterance{
		Text:   text,
		Voice:  a.voice,
		Locale: a.cfg.Locale,
		Rate:   a.cfg.Rate,
		Pitch:  a.cfg.Pitch,
		Volume: a.cfg.Volume,
	}
	st, notify := a.state, a.onState
	a.wg.Add(1)
	a.mu.Unlock()

	emit(notify, st)

	go func() {
		defer a.wg.Done()
		defer cancel()

		err := a.syn.Speak(ctx, u)
		if err != nil && ctx.Err() == nil {
			log.Error("Speech synthesis failed", "err", err)
		}

		a.mu.Lock()
		if id != a.speakID {
			a.mu.Unlock()
			return
		}
		a.speakCancel = nil
		if a.safety != nil {
			a.safety.Stop()
			a.safety = nil
		}
		a.state.Speaking = false
		st, notify := a.state, a.onState
		a.mu.Unlock()

		emit(notify, st)
	}()
}

// CancelSpeaking stops the current utterance. The speaking flag drops
// immediately, before the synthesizer acknowledges.
func (a *Adapter) CancelSpeaking() {
	a.mu.Lock()
	changed := a.cancelSpeakLocked()
	st, notify := a.state, a.onState
	a.mu.Unlock()

	if changed {
		emit(notify, st)
	}
}

// SetVoiceEnabled toggles voice output. Disabling cancels current speech.
func (a *Adapter) SetVoiceEnabled(enable bool) {
	a.mu.Lock()
	if !enable {
		a.cancelSpeakLocked()
	}
	a.state.VoiceEnabled = enable
	st, notify := a.state, a.onState
	a.mu.Unlock()

	log.Info("Voice output", "enabled", enable)
	emit(notify, st)
}

// Close aborts recognition and synthesis and waits for the workers to exit.
func (a *Adapter) Close() {
	a.mu.Lock()
	a.closed = true
	if a.listenCancel != nil {
		a.listenCancel()
		a.listenCancel = nil
	}
	a.listenID++
	a.state.Listening = false
	a.cancelSpeakLocked()
	a.mu.Unlock()

	a.wg.Wait()
}

func (a *Adapter) cancelSpeakLocked() bool {
	if a.safety != nil {
		a.safety.Stop()
		a.safety = nil
	}
	if a.speakCancel != nil {
		a.speakCancel()
		a.speakCancel = nil
	}
	a.speakID++
	changed := a.state.Speaking
	a.state.Speaking = false
	return changed
}

func (a *Adapter) safetyTimeout(text string) time.Duration {
	d := time.Duration(len(text)) * a.cfg.SafetyPerChar
	if d < a.cfg.SafetyMin {
		d = a.cfg.SafetyMin
	}
	return d
}

func (a *Adapter) safetyExpired(id uint64) {
	a.mu.Lock()
	if id != a.speakID || !a.state.Speaking {
		a.mu.Unlock()
		return
	}
	a.safety = nil
	a.state.Speaking = false
	st, notify := a.state, a.onState
	a.mu.Unlock()

	log.Warn("Safety timeout: speaking flag cleared")
	emit(notify, st)
}

func (a *Adapter) voicesChanged(voices []Voice) {
	v := SelectVoice(voices)

	a.mu.Lock()
	a.voice = v
	a.mu.Unlock()

	if v != nil {
		log.Debug("Selected voice", "name", v.Name)
	}
}

func emit(f func(State), st State) {
	if f != nil {
		f(st)
	}
}
