package textify

import "unicode"

// Tokenizer measures text the way an embedding model's tokenizer would.
// Count gates chunk boundaries; Spans supplies the byte offsets used to
// truncate oversized text on a token boundary.
type Tokenizer interface {
	Count(text string) int
	Spans(text string) []Span
}

// Span is a half-open byte range of one token within the original text.
type Span struct {
	Start int
	End   int
}

// WordTokenizer approximates subword tokenizers with unicode word runs.
// It undercounts against BPE vocabularies, so leave a margin on the token
// budget when targeting a real model window.
type WordTokenizer struct{}

func (WordTokenizer) Count(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		if isWordRune(r) {
			if !inWord {
				count++
				inWord = true
			}
		} else {
			inWord = false
		}
	}
	return count
}

func (WordTokenizer) Spans(text string) []Span {
	var spans []Span
	start := -1
	for i, r := range text {
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			spans = append(spans, Span{Start: start, End: i})
			start = -1
		}
	}
	if start >= 0 {
		spans = append(spans, Span{Start: start, End: len(text)})
	}
	return spans
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
