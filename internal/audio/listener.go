package audio

import (
	"context"
	"fmt"
	log "log/slog"
	"time"

	"sahyatri/pkg/stt"
)

// Listener is a speech.Recognizer backed by the microphone and whisper.
type Listener struct {
	rec *Recorder
	tr  *stt.Transcriber
	cue func() error
}

// NewListener builds a listener. cue, if set, is played before recording
// starts.
func NewListener(rec *Recorder, tr *stt.Transcriber, cue func() error) *Listener {
	return &Listener{rec: rec, tr: tr, cue: cue}
}

func (l *Listener) Recognize(ctx context.Context, locale string) (string, error) {
	if l.cue != nil {
		if err := l.cue(); err != nil {
			log.Warn("Failed to play listening cue", "err", err)
		}
	}

	started := time.Now()
	pcm, err := l.rec.RecordAuto(ctx)
	if err != nil {
		return "", fmt.Errorf("record: %w", err)
	}
	if len(pcm) == 0 {
		log.Debug("Nobody spoke", "waited", time.Since(started))
		return "", nil
	}
	log.Debug("Recorded", "samples", len(pcm))

	return l.tr.Transcribe(ctx, pcm, locale)
}
