package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"sahyatri/internal/speech"
	"sahyatri/pkg/audioconv"
	"sahyatri/pkg/protocol"
)

// maxClipSamples caps uploads at 30s of 16 kHz audio.
const maxClipSamples = 30 * audioconv.TargetRate

var errNoTranscriber = errors.New("server-side transcription is not available")

type sender interface {
	Send(e *protocol.Event) error
}

// remoteSynth speaks through the browser: every utterance is a speak event
// acknowledged by a spoken event with the same id.
type remoteSynth struct {
	out sender

	mu       sync.Mutex
	voices   []speech.Voice
	onVoices func([]speech.Voice)
	inFlight map[string]chan struct{}
}

func newRemoteSynth(out sender) *remoteSynth {
	return &remoteSynth{out: out, inFlight: make(map[string]chan struct{})}
}

func (r *remoteSynth) Voices() []speech.Voice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]speech.Voice(nil), r.voices...)
}

func (r *remoteSynth) OnVoicesChanged(f func([]speech.Voice)) {
	r.mu.Lock()
	r.onVoices = f
	r.mu.Unlock()
}

func (r *remoteSynth) setVoices(vs []protocol.Voice) {
	if len(vs) == 0 {
		return
	}
	voices := make([]speech.Voice, len(vs))
	for i, v := range vs {
		voices[i] = speech.Voice{Name: v.Name, Lang: v.Lang}
	}

	r.mu.Lock()
	r.voices = voices
	f := r.onVoices
	r.mu.Unlock()

	if f != nil {
		f(voices)
	}
}

func (r *remoteSynth) Speak(ctx context.Context, u speech.Utterance) error {
	id := uuid.NewString()
	done := make(chan struct{})

	r.mu.Lock()
	r.inFlight[id] = done
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.inFlight, id)
		r.mu.Unlock()
	}()

	e := &protocol.Event{
		Kind:   protocol.SPEAK,
		ID:     id,
		Text:   u.Text,
		Locale: u.Locale,
		Rate:   u.Rate,
		Pitch:  u.Pitch,
		Volume: u.Volume,
	}
	if u.Voice != nil {
		e.Voice = &protocol.Voice{Name: u.Voice.Name, Lang: u.Voice.Lang}
	}
	if err := r.out.Send(e); err != nil {
		return fmt.Errorf("send speak: %w", err)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		_ = r.out.Send(&protocol.Event{Kind: protocol.HUSH, ID: id})
		return ctx.Err()
	}
}

func (r *remoteSynth) spoken(id string) {
	r.mu.Lock()
	done, ok := r.inFlight[id]
	delete(r.inFlight, id)
	r.mu.Unlock()

	if ok {
		close(done)
	}
}

type recognition struct {
	text string
	err  error
}

// remoteRecognizer asks the browser for one recognition attempt. The browser
// answers with a transcript, a recorded clip for whisper, or an error.
type remoteRecognizer struct {
	out sender
	tr  Transcriber

	mu      sync.Mutex
	pending map[string]chan recognition
	locale  string
}

func newRemoteRecognizer(out sender, tr Transcriber) *remoteRecognizer {
	return &remoteRecognizer{out: out, tr: tr, pending: make(map[string]chan recognition)}
}

func (r *remoteRecognizer) Recognize(ctx context.Context, locale string) (string, error) {
	id := uuid.NewString()
	res := make(chan recognition, 1)

	r.mu.Lock()
	r.pending[id] = res
	r.locale = locale
	r.mu.Unlock()
	defer r.forget(id)

	if err := r.out.Send(&protocol.Event{Kind: protocol.START_RECOG, ID: id, Locale: locale}); err != nil {
		return "", fmt.Errorf("send start: %w", err)
	}

	select {
	case got := <-res:
		return got.text, got.err
	case <-ctx.Done():
		_ = r.out.Send(&protocol.Event{Kind: protocol.STOP_RECOG, ID: id})
		return "", ctx.Err()
	}
}

func (r *remoteRecognizer) forget(id string) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

// resolve completes attempt id. Events for unknown or finished attempts are
// dropped.
func (r *remoteRecognizer) resolve(id string, got recognition) {
	r.mu.Lock()
	res, ok := r.pending[id]
	delete(r.pending, id)
	r.mu.Unlock()

	if ok {
		res <- got
	}
}

// transcribe decodes and transcribes an uploaded clip for attempt id.
func (r *remoteRecognizer) transcribe(ctx context.Context, id, format string, data []byte) {
	r.mu.Lock()
	_, ok := r.pending[id]
	locale := r.locale
	r.mu.Unlock()
	if !ok {
		return
	}

	if r.tr == nil {
		r.resolve(id, recognition{err: errNoTranscriber})
		return
	}

	pcm, err := audioconv.Decode(data, format, audioconv.Options{MaxSamples: maxClipSamples})
	if err != nil {
		r.resolve(id, recognition{err: fmt.Errorf("decode clip: %w", err)})
		return
	}
	text, err := r.tr.Transcribe(ctx, pcm, locale)
	r.resolve(id, recognition{text: text, err: err})
}
