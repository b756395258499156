package intent

import (
	"strings"
)

// Result is the classified purpose of an utterance. It is one of
// Navigation, VoiceControl, Canned or NoMatch.
type Result interface {
	isResult()
}

// Navigation asks the host application to move to Path.
type Navigation struct {
	Destination string
	Path        string
}

// VoiceControl toggles spoken output.
type VoiceControl struct {
	Enable bool
}

// Canned is a pre-written answer.
type Canned struct {
	Text string
}

// NoMatch means the utterance needs the generative fallback.
type NoMatch struct{}

func (Navigation) isResult()   {}
func (VoiceControl) isResult() {}
func (Canned) isResult()       {}
func (NoMatch) isResult()      {}

var (
	enablePhrases = []string{
		"unmute", "turn on sound", "enable voice", "speak to me",
		"turn on voice", "enable audio", "start speaking", "talk to me",
	}
	disablePhrases = []string{
		"mute", "turn off sound", "disable voice", "stop speaking",
		"be quiet", "silence", "no sound", "turn off voice", "don't talk",
	}
	navigationVerbs = []string{
		"go to", "navigate to", "take me to", "open", "show me", "show", "visit",
		"switch to", "move to", "bring me to",
	}
)

// minReverseMatch is the shortest candidate allowed to match as a substring
// of a route phrase. Shorter candidates ("a", "it") match almost anything.
const minReverseMatch = 3

// Matcher resolves utterances against immutable tables. It holds no mutable
// state and is safe for concurrent use.
type Matcher struct {
	routes *RouteTable
	faqs   *FaqTable
}

func NewMatcher(routes *RouteTable, faqs *FaqTable) *Matcher {
	if routes == nil {
		routes = NewRouteTable()
	}
	if faqs == nil {
		faqs = NewFaqTable()
	}
	return &Matcher{routes: routes, faqs: faqs}
}

func (m *Matcher) Routes() *RouteTable { return m.routes }

// Resolve classifies input. Checks run in priority order: voice control,
// navigation, FAQ. Blank input yields NoMatch without consulting any table.
func (m *Matcher) Resolve(input string) Result {
	q := strings.ToLower(strings.TrimSpace(input))
	if q == "" {
		return NoMatch{}
	}

	if r, ok := matchVoiceControl(q); ok {
		return r
	}
	if r, ok := m.matchNavigation(q); ok {
		return r
	}
	if r, ok := m.matchFaq(q); ok {
		return r
	}
	return NoMatch{}
}

func matchVoiceControl(q string) (VoiceControl, bool) {
	for _, p := range enablePhrases {
		if strings.Contains(q, p) {
			return VoiceControl{Enable: true}, true
		}
	}
	for _, p := range disablePhrases {
		if strings.Contains(q, p) {
			return VoiceControl{Enable: false}, true
		}
	}
	return VoiceControl{}, false
}

func (m *Matcher) matchNavigation(q string) (Navigation, bool) {
	candidate := q
	for _, verb := range navigationVerbs {
		if i := strings.Index(q, verb); i >= 0 {
			candidate = trimDestination(q[i+len(verb):])
			break
		}
	}
	if candidate == "" {
		candidate = q
	}

	for _, r := range m.routes.routes {
		if strings.Contains(candidate, r.Phrase) {
			return Navigation{Destination: r.Phrase, Path: r.Path}, true
		}
	}
	if len(candidate) < minReverseMatch {
		return Navigation{}, false
	}
	for _, r := range m.routes.routes {
		if strings.Contains(r.Phrase, candidate) {
			return Navigation{Destination: r.Phrase, Path: r.Path}, true
		}
	}
	return Navigation{}, false
}

// trimDestination drops a leading article and a trailing "page"/"screen".
func trimDestination(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "the ")
	for _, suffix := range []string{" page", " screen"} {
		s = strings.TrimSuffix(s, suffix)
	}
	return strings.TrimSpace(s)
}

func (m *Matcher) matchFaq(q string) (Canned, bool) {
	for _, f := range m.faqs.faqs {
		if q == f.Question {
			return Canned{Text: f.Answer}, true
		}
	}

	words := strings.Fields(q)
	for _, f := range m.faqs.faqs {
		if strings.Contains(q, f.Question) {
			return Canned{Text: f.Answer}, true
		}
		if len(words) >= 3 && sharedWords(words, strings.Fields(f.Question)) >= 2 {
			return Canned{Text: f.Answer}, true
		}
	}
	return Canned{}, false
}

// sharedWords counts question words longer than three letters that also
// appear in the query.
func sharedWords(query, question []string) int {
	n := 0
	for _, w := range question {
		if len(w) <= 3 {
			continue
		}
		for _, qw := range query {
			if qw == w {
				n++
				break
			}
		}
	}
	return n
}
