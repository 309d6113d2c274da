package chunker

import "strings"

// Tokenize implements the code-friendly FTS tokenizer from spec §4.3: lowercase,
// split on non-identifier characters, preserve identifiers verbatim, no
// stemming, no stop words.
func Tokenize(text string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, strings.ToLower(cur.String()))
			cur.Reset()
		}
	}
	for _, r := range text {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// FTSDocument builds the weighted token text for a chunk: semantic tags are
// stored in their own column (weighted higher at query time via bm25 column
// weights) and content tokens in another.
func FTSDocument(kind, name string, roles, tags, identifiers []string, content string) (tagText, contentText string) {
	var tagTokens []string
	tagTokens = append(tagTokens, Tokenize(kind)...)
	tagTokens = append(tagTokens, Tokenize(name)...)
	for _, r := range roles {
		tagTokens = append(tagTokens, Tokenize(r)...)
	}
	for _, t := range tags {
		tagTokens = append(tagTokens, Tokenize(t)...)
	}
	for _, id := range identifiers {
		tagTokens = append(tagTokens, Tokenize(id)...)
	}
	return strings.Join(tagTokens, " "), strings.Join(Tokenize(content), " ")
}
