package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	m := NewMatcher(DefaultRoutes(), DefaultFaqs())

	tests := []struct {
		name  string
		input string
		want  Result
	}{
		{"blank", "   ", NoMatch{}},
		{"empty", "", NoMatch{}},
		{"unmute", "Unmute please", VoiceControl{Enable: true}},
		{"unmute wins over mute", "unmute, do not mute", VoiceControl{Enable: true}},
		{"talk to me", "can you talk to me", VoiceControl{Enable: true}},
		{"mute", "mute", VoiceControl{Enable: false}},
		{"be quiet", "Please be quiet now", VoiceControl{Enable: false}},
		{"voice beats navigation", "stop speaking and go to the map", VoiceControl{Enable: false}},
		{"take me to pnr", "take me to the pnr status page", Navigation{Destination: "pnr", Path: "/pnr"}},
		{"show me map", "Show me the train map", Navigation{Destination: "map", Path: "/map"}},
		{"open editor", "open map editor", Navigation{Destination: "map editor", Path: "/admin/map-editor"}},
		{"direct mention", "pnr", Navigation{Destination: "pnr", Path: "/pnr"}},
		{"reverse match", "go to assist", Navigation{Destination: "voice assistant", Path: "/assistant"}},
		{"verb without destination", "go to", NoMatch{}},
		{"trailing verb uses whole input", "pnr status, go to", Navigation{Destination: "pnr", Path: "/pnr"}},
		{"faq contains", "what is sahyatri exactly", Canned{Text: DefaultFaqs().Faqs()[1].Answer}},
		{"faq shared words", "facilities at the station please", Canned{Text: DefaultFaqs().Faqs()[8].Answer}},
		{"faq exact", "wifi", Canned{Text: DefaultFaqs().Faqs()[10].Answer}},
		{"no match", "tell me a joke", NoMatch{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Resolve(tt.input))
		})
	}
}

func TestDefaultFaqsAreReachable(t *testing.T) {
	m := NewMatcher(DefaultRoutes(), DefaultFaqs())

	for _, f := range DefaultFaqs().Faqs() {
		assert.Equal(t, Canned{Text: f.Answer}, m.Resolve(f.Question), f.Question)
	}
	assert.Equal(t, Canned{Text: DefaultFaqs().Faqs()[0].Answer}, m.Resolve("what is my reservation status"))
	assert.Equal(t, Canned{Text: DefaultFaqs().Faqs()[5].Answer}, m.Resolve("what does passenger name record mean"))
}

func TestResolveTieBreakIsInsertionOrder(t *testing.T) {
	m := NewMatcher(NewRouteTable(
		Route{"station", "/first"},
		Route{"station map", "/second"},
	), nil)

	got := m.Resolve("take me to the station map")
	assert.Equal(t, Navigation{Destination: "station", Path: "/first"}, got)
}

func TestResolveSharedWordsNeedsThreeWords(t *testing.T) {
	m := NewMatcher(NewRouteTable(), NewFaqTable(Faq{"station facilities", "answer"}))

	assert.Equal(t, NoMatch{}, m.Resolve("facilities station"))
	assert.Equal(t, Canned{Text: "answer"}, m.Resolve("facilities at station"))
}

func TestResolveSubstringFalsePositive(t *testing.T) {
	m := NewMatcher(NewRouteTable(Route{"train", "/trains"}), nil)

	// substring containment is accepted behaviour
	assert.Equal(t, Navigation{Destination: "train", Path: "/trains"}, m.Resolve("platform train options"))
}

func TestExtractNavigation(t *testing.T) {
	clean, path, ok := ExtractNavigation("I'll navigate you to the pnr page. [NAVIGATION:/pnr]")
	require.True(t, ok)
	assert.Equal(t, "/pnr", path)
	assert.Equal(t, "I'll navigate you to the pnr page.", clean)

	clean, path, ok = ExtractNavigation("No marker here")
	assert.False(t, ok)
	assert.Empty(t, path)
	assert.Equal(t, "No marker here", clean)

	clean, _, ok = ExtractNavigation("Heading out " + Marker("/map") + " now")
	require.True(t, ok)
	assert.Equal(t, "Heading out  now", clean)
}

func TestParseTables(t *testing.T) {
	data := []byte(`
routes:
  - phrase: "Platform Guide"
    path: /platform
faqs:
  - question: lost luggage
    answer: Visit the station master's office.
`)
	routes, faqs, err := ParseTables(data)
	require.NoError(t, err)
	assert.Equal(t, []Route{{Phrase: "platform guide", Path: "/platform"}}, routes.Routes())
	assert.Equal(t, "Visit the station master's office.", faqs.Faqs()[0].Answer)

	routes, faqs, err = ParseTables([]byte(`faqs: []`))
	require.NoError(t, err)
	assert.Equal(t, DefaultRoutes().Routes(), routes.Routes())
	assert.Equal(t, DefaultFaqs().Faqs(), faqs.Faqs())

	_, _, err = ParseTables([]byte(`
routes:
  - phrase: broken
    path: no-slash
`))
	require.Error(t, err)
}

func TestRouteTablePaths(t *testing.T) {
	table := NewRouteTable(Route{"a", "/x"}, Route{"b", "/y"}, Route{"c", "/x"})
	assert.Equal(t, []string{"/x", "/y"}, table.Paths())
}
