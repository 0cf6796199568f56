// Package moderation stars out forbidden words in message content before
// it is persisted or broadcast. Matching is accent- and case-insensitive
// and ignores separator noise, so "c.e-n_s+o r" still matches "censor".
package moderation

import (
	"bufio"
	"bytes"
	_ "embed"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

//go:embed words.txt
var defaultWordList []byte

// Censor holds the compiled Aho-Corasick automaton.
type Censor struct {
	machine     *goahocorasick.Machine
	replacement rune
}

// textMapping links each normalized rune back to its original position
// so only the offending characters get replaced.
type textMapping struct {
	normalized []rune
	origIdx    []int
}

// NewCensor compiles the automaton from the given words. An empty slice
// falls back to the embedded default list.
func NewCensor(words []string, replacement rune) (*Censor, error) {
	if len(words) == 0 {
		words = DefaultWords()
	}
	patterns := make([][]rune, 0, len(words))
	for _, w := range words {
		if normalized := normalizeRunes([]rune(w)); len(normalized) > 0 {
			patterns = append(patterns, normalized)
		}
	}

	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, err
	}
	return &Censor{machine: machine, replacement: replacement}, nil
}

// DefaultWords parses the embedded word list, one word per line, '#'
// starting a comment.
func DefaultWords() []string {
	var words []string
	scanner := bufio.NewScanner(bytes.NewReader(defaultWordList))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	return words
}

// Apply replaces every matched span with the replacement rune while
// preserving the original spacing and punctuation.
func (c *Censor) Apply(original string) string {
	mapping := normalize(original)
	if len(mapping.normalized) == 0 {
		return original
	}

	spans := c.machine.MultiPatternSearch(mapping.normalized, false)
	if len(spans) == 0 {
		return original
	}

	origRunes := []rune(original)
	for _, span := range spans {
		start := span.Pos
		end := start + len(span.Word)
		if start < 0 || end > len(mapping.origIdx) {
			continue
		}
		from := mapping.origIdx[start]
		to := mapping.origIdx[end-1] + 1
		for i := from; i < to; i++ {
			origRunes[i] = c.replacement
		}
	}
	return string(origRunes)
}

func normalize(input string) textMapping {
	origRunes := []rune(input)
	mapping := textMapping{
		normalized: make([]rune, 0, len(origRunes)),
		origIdx:    make([]int, 0, len(origRunes)),
	}
	for i, r := range origRunes {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		mapping.normalized = append(mapping.normalized, unicode.ToLower(clean))
		mapping.origIdx = append(mapping.origIdx, i)
	}
	return mapping
}

func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		out = append(out, unicode.ToLower(clean))
	}
	return out
}

// simplifyRune folds common leetspeak substitutions and accented vowels
// to their base letter.
func simplifyRune(r rune) rune {
	switch r {
	case '0':
		return 'o'
	case '1', '!':
		return 'i'
	case '3':
		return 'e'
	case '4', '@':
		return 'a'
	case '5', '$':
		return 's'
	case '7':
		return 't'
	case 'à', 'á', 'â', 'ä':
		return 'a'
	case 'è', 'é', 'ê', 'ë':
		return 'e'
	case 'ì', 'í', 'î', 'ï':
		return 'i'
	case 'ò', 'ó', 'ô', 'ö':
		return 'o'
	case 'ù', 'ú', 'û', 'ü':
		return 'u'
	default:
		return r
	}
}

// isNoise drops separators so split-up words still match.
func isNoise(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r) || r == '-' || r == '_' || r == '.' || r == '+'
}
