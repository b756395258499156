package speech

import "strings"

var femaleNames = []string{
	"samantha", "victoria", "karen", "tessa", "monica", "amy", "lisa", "sarah", "zira",
}

var platformFemale = []string{
	"Google US English Female",
	"Google UK English Female",
	"female1", "female2", "female3",
}

// voiceRules are tried in order; the first rule matching any voice wins.
var voiceRules = []func(Voice) bool{
	func(v Voice) bool {
		n := strings.ToLower(v.Name)
		return strings.Contains(n, "female") || strings.Contains(n, "woman")
	},
	func(v Voice) bool {
		n := strings.ToLower(v.Name)
		for _, name := range femaleNames {
			if strings.Contains(n, name) {
				return true
			}
		}
		return false
	},
	func(v Voice) bool {
		for _, id := range platformFemale {
			if strings.Contains(v.Name, id) {
				return true
			}
		}
		return false
	},
}

// SelectVoice picks a female-sounding voice, or nil for the platform default.
func SelectVoice(voices []Voice) *Voice {
	for _, rule := range voiceRules {
		for i := range voices {
			if rule(voices[i]) {
				v := voices[i]
				return &v
			}
		}
	}
	return nil
}
