package tts

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <string.h>
#include <espeak-ng/speak_lib.h>

static int
sy_init(void)
{
	return espeak_Initialize(AUDIO_OUTPUT_PLAYBACK, 500, NULL, 0);
}

static int
sy_voice_count(void)
{
	const espeak_VOICE **v = espeak_ListVoices(NULL);
	int n = 0;
	while (v && v[n])
	{ n++; }
	return n;
}

static const char *
sy_voice_name(int i)
{
	return espeak_ListVoices(NULL)[i]->name;
}

// languages is a list of (priority byte, name) pairs, we want the first name
static const char *
sy_voice_lang(int i)
{
	const char *l = espeak_ListVoices(NULL)[i]->languages;
	return l ? l + 1 : "";
}

static int
sy_say(const char *text, const char *voice, int rate, int pitch, int volume)
{
	if (!text)
	{ return -1; }

	if (voice && *voice && espeak_SetVoiceByName(voice) != EE_OK)
	{ return -2; }

	espeak_SetParameter(espeakRATE, rate, 0);
	espeak_SetParameter(espeakPITCH, pitch, 0);
	espeak_SetParameter(espeakVOLUME, volume, 0);

	return espeak_Synth(text, strlen(text) + 1, 0, POS_CHARACTER, 0, espeakCHARS_AUTO, NULL, NULL);
}
*/
import "C"

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"sync"
	"time"
	"unsafe"

	"sahyatri/internal/speech"
)

const pollInterval = 20 * time.Millisecond

// Espeak is a speech.Synthesizer playing through espeak-ng. Only one
// utterance plays at a time.
type Espeak struct {
	mu     sync.Mutex
	voices []speech.Voice
}

func NewEspeak() (*Espeak, error) {
	if rc := C.sy_init(); rc < 0 {
		return nil, errors.New("espeak init failed")
	}

	n := int(C.sy_voice_count())
	voices := make([]speech.Voice, 0, n)
	for i := 0; i < n; i++ {
		voices = append(voices, speech.Voice{
			Name: C.GoString(C.sy_voice_name(C.int(i))),
			Lang: C.GoString(C.sy_voice_lang(C.int(i))),
		})
	}
	log.Debug("Loaded espeak voices", "count", n)

	return &Espeak{voices: voices}, nil
}

func (e *Espeak) Voices() []speech.Voice {
	return append([]speech.Voice(nil), e.voices...)
}

// Speak blocks until playback ends or ctx is cancelled.
func (e *Espeak) Speak(ctx context.Context, u speech.Utterance) error {
	if strings.TrimSpace(u.Text) == "" {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	ctext := C.CString(u.Text)
	defer C.free(unsafe.Pointer(ctext))
	cvoice := C.CString(voiceName(u))
	defer C.free(unsafe.Pointer(cvoice))

	rate, pitch, volume := params(u)
	if rc := C.sy_say(ctext, cvoice, C.int(rate), C.int(pitch), C.int(volume)); rc != 0 {
		return fmt.Errorf("espeak synth failed: %d", int(rc))
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			C.espeak_Cancel()
			return ctx.Err()
		case <-ticker.C:
			if C.espeak_IsPlaying() == 0 {
				return nil
			}
		}
	}
}

func (e *Espeak) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	C.espeak_Cancel()
	C.espeak_Terminate()
}

// voiceName prefers the selected voice, then the locale ("en-US" is an
// espeak voice as "en-us").
func voiceName(u speech.Utterance) string {
	if u.Voice != nil && u.Voice.Name != "" {
		return u.Voice.Name
	}
	return strings.ToLower(u.Locale)
}

// params maps browser-style multipliers onto espeak units.
func params(u speech.Utterance) (rate, pitch, volume int) {
	orOne := func(v float64) float64 {
		if v <= 0 {
			return 1
		}
		return v
	}
	rate = min(max(int(175*orOne(u.Rate)), 80), 450)
	pitch = min(max(int(50*orOne(u.Pitch)), 0), 100)
	volume = min(max(int(100*orOne(u.Volume)), 0), 200)
	return rate, pitch, volume
}
