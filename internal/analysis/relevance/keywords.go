package relevance

import "strings"

// stopwords are filtered out of the context vocabulary so that filler words
// never count as a keyword match.
var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {},
	"is": {}, "are": {}, "was": {}, "were": {},
}

// Keywords derives the significant vocabulary of a context document:
// lower-cased whitespace-split tokens, minus stopwords, minimum length 3.
// Pure function of the document; callers cache the result.
func Keywords(doc string) map[string]struct{} {
	keywords := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(doc)) {
		if len(word) < 3 {
			continue
		}
		if _, skip := stopwords[word]; skip {
			continue
		}
		keywords[word] = struct{}{}
	}
	return keywords
}

func tokenSet(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(text)) {
		tokens[word] = struct{}{}
	}
	return tokens
}
