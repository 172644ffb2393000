package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// abbreviations that end with a period but do not end a sentence
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true, "sr": true, "jr": true,
	"st": true, "vs": true, "etc": true, "e.g": true, "i.e": true, "fig": true, "no": true,
	"approx": true, "inc": true, "ltd": true, "co": true, "corp": true, "dept": true,
	"u.s": true, "a.m": true, "p.m": true,
}

// splitSentences splits text on sentence-ending punctuation followed by
// whitespace. Whitespace inside a sentence is collapsed to single spaces.
func splitSentences(text string) []string {
	words := strings.Fields(text)
	var sentences []string
	var cur []string
	for i, w := range words {
		cur = append(cur, w)
		if i == len(words)-1 || endsSentence(w) {
			sentences = append(sentences, strings.Join(cur, " "))
			cur = cur[:0]
		}
	}
	return sentences
}

// endsSentence reports whether a whitespace-delimited word closes a sentence.
func endsSentence(word string) bool {
	core := strings.TrimRight(word, `"')]’”`)
	if core == "" {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(core)
	switch last {
	case '!', '?':
		return true
	case '.':
	default:
		return false
	}

	stem := strings.TrimLeft(strings.TrimSuffix(core, "."), `"'([‘“`)
	if stem == "" || strings.HasSuffix(stem, ".") {
		// ellipsis
		return true
	}
	if abbreviations[strings.ToLower(stem)] {
		return false
	}
	// single-letter initials such as "J."
	if utf8.RuneCountInString(stem) == 1 {
		r, _ := utf8.DecodeRuneInString(stem)
		if unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

// splitLong breaks a sentence longer than size into word-bounded pieces.
// A single word longer than size is cut by runes.
func splitLong(sentence string, size int) []string {
	if runeLen(sentence) <= size {
		return []string{sentence}
	}
	var pieces []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if curLen > 0 {
			pieces = append(pieces, cur.String())
			cur.Reset()
			curLen = 0
		}
	}
	for _, w := range strings.Fields(sentence) {
		for runeLen(w) > size {
			flush()
			r := []rune(w)
			pieces = append(pieces, string(r[:size]))
			w = string(r[size:])
		}
		wl := runeLen(w)
		if wl == 0 {
			continue
		}
		add := wl
		if curLen > 0 {
			add++
		}
		if curLen+add > size {
			flush()
			add = wl
		}
		if curLen > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(w)
		curLen += add
	}
	flush()
	return pieces
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
