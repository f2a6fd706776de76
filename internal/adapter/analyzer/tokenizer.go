package analyzer

import (
	"strings"
	"unicode"
)

// Tokenizer turns text into normalized terms for the hashing embedder.
type Tokenizer struct {
	stopwords  map[string]struct{}
	foldPlural bool
}

// NewTokenizer creates a Tokenizer. With foldPlurals set, simple English
// plurals are reduced to their singular ("sofas" -> "sofa").
func NewTokenizer(foldPlurals bool) *Tokenizer {
	return &Tokenizer{
		stopwords:  defaultStopwords(),
		foldPlural: foldPlurals,
	}
}

// Tokenize lowercases text, splits it on non-word runes and drops stopwords
// and single-character tokens.
func (t *Tokenizer) Tokenize(text string) []string {
	words := splitWords(text)
	tokens := make([]string, 0, len(words))

	for _, word := range words {
		word = strings.ToLower(word)
		if len([]rune(word)) < 2 {
			continue
		}
		if _, isStop := t.stopwords[word]; isStop {
			continue
		}
		if t.foldPlural {
			word = singular(word)
		}
		tokens = append(tokens, word)
	}

	return tokens
}

// Words splits text on whitespace, keeping punctuation attached. It is the
// word-boundary tokenizer used for chunking.
func Words(text string) []string {
	return strings.Fields(text)
}

// splitWords splits text into letter/digit runs.
func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func singular(word string) string {
	n := len(word)
	switch {
	case n > 4 && strings.HasSuffix(word, "ies"):
		return word[:n-3] + "y"
	case n > 4 && (strings.HasSuffix(word, "ches") || strings.HasSuffix(word, "shes") || strings.HasSuffix(word, "xes")):
		return word[:n-2]
	case n > 3 && strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss") && !strings.HasSuffix(word, "us") && !strings.HasSuffix(word, "is"):
		return word[:n-1]
	}
	return word
}

func defaultStopwords() map[string]struct{} {
	stops := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for",
		"from", "has", "he", "in", "is", "it", "its", "of", "on",
		"that", "the", "to", "was", "were", "will", "with", "this",
		"have", "had", "but", "not", "you", "your", "we", "our",
		"they", "their", "she", "her", "his", "if", "or", "so",
		"do", "does", "did", "been", "being", "would", "could",
		"should", "may", "might", "which", "who", "what", "when",
		"where", "how", "all", "each", "any", "some", "than", "too",
		"very", "just", "also", "i", "me", "my", "there", "these",
		"those", "into", "about", "can",
	}
	m := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		m[s] = struct{}{}
	}
	return m
}
