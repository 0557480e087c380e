package relevance

import "strings"

// questionMarkers flag a message as a question via case-insensitive substring
// match. The list is deliberately broad; the relevance threshold does the
// actual filtering.
var questionMarkers = []string{
	"?",
	"what", "how", "why", "when", "where", "who", "which",
	"can you", "could you", "would you",
	"is there", "are there",
	"tell me",
}

// Scorer measures how close a message sits to the agent's purpose and to the
// recent flow of a conversation. It holds the keyword vocabulary extracted
// once from the static context document; both scoring operations are pure.
type Scorer struct {
	keywords map[string]struct{}
}

// NewScorer extracts and caches the keyword set for the given context document.
func NewScorer(contextDoc string) *Scorer {
	return &Scorer{keywords: Keywords(contextDoc)}
}

// KeywordCount reports the size of the cached vocabulary.
func (s *Scorer) KeywordCount() int {
	return len(s.keywords)
}

// ContextRelevance scores a message against the context vocabulary: the
// fraction of keywords that appear as whole tokens in the message, in [0,1].
func (s *Scorer) ContextRelevance(message string) float64 {
	matches := 0
	for token := range tokenSet(message) {
		if _, ok := s.keywords[token]; ok {
			matches++
		}
	}

	score := float64(matches) / float64(max(1, len(s.keywords)))
	return min(1.0, score)
}

// ContinuityRelevance scores a message against recent conversation text using
// Jaccard similarity of the two token sets.
func (s *Scorer) ContinuityRelevance(recentText, message string) float64 {
	recent := tokenSet(recentText)
	tokens := tokenSet(message)

	overlap := 0
	union := len(recent)
	for token := range tokens {
		if _, ok := recent[token]; ok {
			overlap++
		} else {
			union++
		}
	}

	return float64(overlap) / float64(max(1, union))
}

// IsQuestion detects whether a message reads as a question.
func IsQuestion(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range questionMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
