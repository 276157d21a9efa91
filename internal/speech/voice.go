package speech

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/phantomlink/pkg/provider/tts"
)

const (
	phoneticThreshold = 0.70
	fuzzyThreshold    = 0.85
)

// SelectVoice picks the voice to speak with.
//
// Order of preference: the first voice whose name contains preferred
// (case-insensitive), then the voice whose name sounds most like preferred
// (Double Metaphone overlap ranked by Jaro-Winkler, or a close Jaro-Winkler
// match alone), then the first voice. ok is false only when voices is empty.
func SelectVoice(voices []tts.VoiceProfile, preferred string) (v tts.VoiceProfile, ok bool) {
	if len(voices) == 0 {
		return tts.VoiceProfile{}, false
	}
	want := strings.ToLower(strings.TrimSpace(preferred))
	if want == "" {
		return voices[0], true
	}
	for _, v := range voices {
		if strings.Contains(strings.ToLower(v.Name), want) {
			return v, true
		}
	}
	if i := closestName(want, voices); i >= 0 {
		return voices[i], true
	}
	return voices[0], true
}

// closestName returns the index of the voice whose name best matches want, or
// -1 if nothing is close enough. Phonetic candidates always beat plain fuzzy
// ones.
func closestName(want string, voices []tts.VoiceProfile) int {
	wantTokens := strings.Fields(want)
	wantCodes := metaphones(wantTokens)

	best, bestScore, bestPhonetic := -1, 0.0, false
	for i, v := range voices {
		name := strings.ToLower(strings.TrimSpace(v.Name))
		if name == "" {
			continue
		}
		tokens := strings.Fields(name)
		score := similarity(wantTokens, tokens)

		if overlaps(wantCodes, metaphones(tokens)) {
			if score >= phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = i, score, true
			}
		} else if !bestPhonetic && score >= fuzzyThreshold && score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

func metaphones(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score between the full names and any
// pair of their words. Voice names are often "Name - Description", so the
// word-level score is what usually matters.
func similarity(a, b []string) float64 {
	score := matchr.JaroWinkler(strings.Join(a, " "), strings.Join(b, " "), false)
	for _, x := range a {
		for _, y := range b {
			score = max(score, matchr.JaroWinkler(x, y, false))
		}
	}
	return score
}
