package frontier

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball"
)

// Scoring weights.
const (
	// RelevanceWeight is awarded per vocabulary stem matched in the URL path
	// and again per stem matched in the anchor text.
	RelevanceWeight = 75

	// DistanceWeight is divided by the wave number.
	DistanceWeight = 1000

	// InlinkWeight is awarded per distinct inlink.
	InlinkWeight = 5

	// TrustedInlinkWeight is awarded per inlink from a trusted domain.
	TrustedInlinkWeight = 3

	// TrustedDomainBonus is awarded when the item itself is on a trusted domain.
	TrustedDomainBonus = 30
)

// Scorer turns a relevance vocabulary into stemmed terms and scores items
// against it. A Scorer is immutable after construction and safe for
// concurrent use.
type Scorer struct {
	vocab map[string]struct{}
}

// NewScorer builds a Scorer from relevance terms. Multi-word terms
// contribute each of their words, so "Mitt Romney" adds both "mitt" and
// "romney" to the vocabulary.
func NewScorer(terms []string) *Scorer {
	s := &Scorer{vocab: make(map[string]struct{})}
	for _, term := range terms {
		for _, stem := range Stems(term) {
			s.vocab[stem] = struct{}{}
		}
	}
	return s
}

// Vocabulary returns the number of distinct stems in the vocabulary.
func (s *Scorer) Vocabulary() int {
	return len(s.vocab)
}

// matches counts the stems that are in the vocabulary. stems must already
// be de-duplicated.
func (s *Scorer) matches(stems []string) int {
	n := 0
	for _, stem := range stems {
		if _, ok := s.vocab[stem]; ok {
			n++
		}
	}
	return n
}

// Score computes the priority of item. Higher is better.
func (s *Scorer) Score(item *Item) float64 {
	score := float64(RelevanceWeight * (s.matches(item.pathStems) + s.matches(item.anchorStems)))
	score += DistanceWeight / float64(item.wave)
	score += float64(InlinkWeight * len(item.inlinks))
	score += float64(TrustedInlinkWeight * item.trustedInlinks)
	if item.trusted {
		score += TrustedDomainBonus
	}
	return score
}

// Stems splits text into lower-cased alphanumeric words and returns the
// distinct English stems of those words, in order of first appearance.
func Stems(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(words))
	stems := make([]string, 0, len(words))
	for _, w := range words {
		stem, err := snowball.Stem(w, "english", true)
		if err != nil || stem == "" {
			stem = w
		}
		if _, ok := seen[stem]; ok {
			continue
		}
		seen[stem] = struct{}{}
		stems = append(stems, stem)
	}
	return stems
}
