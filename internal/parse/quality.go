package parse

import "unicode/utf8"

// ScoreTranslation rates a source/target pair in [0, 1]. The score is a
// cheap structural heuristic, not a linguistic one: empty sides and copies
// score zero, and wildly mismatched lengths are penalized since a ten-word
// sentence does not translate into four paragraphs.
func ScoreTranslation(source, target string) float64 {
	if source == "" || target == "" {
		return 0
	}
	if source == target {
		return 0
	}

	srcLen := float64(utf8.RuneCountInString(source))
	tgtLen := float64(utf8.RuneCountInString(target))
	ratio := srcLen / tgtLen
	if ratio > 1 {
		ratio = 1 / ratio
	}
	// Languages differ in verbosity; anything above ~1:3 is plausible.
	const plausible = 1.0 / 3.0
	if ratio >= plausible {
		return 1
	}
	return ratio / plausible
}
