// Package extractor implements EntityExtractor: a stateless, deterministic,
// pattern-driven entity recognizer. No third-party NER library in the
// reference corpus offers this; regexp is the standard library's own
// pattern-matching primitive and the idiomatic choice for a deterministic,
// dependency-free extraction pass (see DESIGN.md).
package extractor

import (
	"regexp"
	"sort"
	"strings"

	"github.com/convomem/convomem/pkg/repositories"
)

// ExtractedEntity is one candidate entity span found in a message.
type ExtractedEntity struct {
	Text           string
	NormalizedText string
	Type           repositories.EntityType
	Confidence     float64
	StartPos       int
	EndPos         int
	Method         repositories.MentionMethod
	Context        string
}

// Options tunes the extraction pass.
type Options struct {
	MinConfidence         float64
	MaxEntitiesPerMessage int
}

// DefaultOptions matches spec.md §4.I's defaults.
var DefaultOptions = Options{MinConfidence: 0.5, MaxEntitiesPerMessage: 50}

type pattern struct {
	entityType repositories.EntityType
	re         *regexp.Regexp
	base       float64 // confidence contribution before additive/negative rules
}

// patterns are applied in this declared order; earlier patterns win ties
// during normalizedText dedup (spec.md §4.I step 2: "keeping the first
// (pattern-ordered) occurrence").
var patterns = []pattern{
	{repositories.EntityPerson, regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Dr|Prof)\.?\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?\b`), 0.7},
	{repositories.EntityPerson, regexp.MustCompile(`\b[A-Z][a-z]+\s+[A-Z][a-z]+\b`), 0.55},
	{repositories.EntityOrganization, regexp.MustCompile(`\b[A-Z][A-Za-z0-9]*(?:\s+[A-Z][A-Za-z0-9]*)*\s+(?:Inc|Corp|LLC|Ltd|Co|GmbH|Labs|Systems)\.?\b`), 0.65},
	{repositories.EntityTechnical, regexp.MustCompile(`\b[A-Za-z][A-Za-z0-9]*(?:\.[A-Za-z0-9]+)+\b`), 0.55}, // dotted identifiers: pkg.Func, file.ext
	{repositories.EntityTechnical, regexp.MustCompile(`\b[A-Z][A-Za-z0-9]*(?:[A-Z][a-z0-9]+)+\b`), 0.45},    // CamelCase identifiers
	{repositories.EntityTechnical, regexp.MustCompile(`\bv?\d+\.\d+(?:\.\d+)?\b`), 0.5},                     // version numbers
	{repositories.EntityProduct, regexp.MustCompile(`\b[A-Z][a-z]+(?:[A-Z][A-Za-z]*)+\b`), 0.4},
	{repositories.EntityLocation, regexp.MustCompile(`\b(?:in|at|near)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)\b`), 0.5},
	{repositories.EntityEvent, regexp.MustCompile(`\b[A-Z][a-z]+\s+(?:Conference|Summit|Meetup|Workshop|Hackathon)\b`), 0.6},
	{repositories.EntityConcept, regexp.MustCompile(`\b[a-z]+(?:-[a-z]+){1,3}\b`), 0.35}, // hyphenated compound terms
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "this": {}, "that": {},
	"from": {}, "have": {}, "will": {}, "would": {}, "could": {}, "should": {},
	"about": {}, "there": {}, "their": {}, "which": {},
}

var commonNouns = map[string]struct{}{
	"team": {}, "project": {}, "meeting": {}, "issue": {}, "feature": {}, "bug": {},
}

var hypotheticalCues = []string{"maybe", "perhaps", "might", "could be", "hypothetically", "suppose", "what if"}

// Extract runs every pattern over text and returns the deduplicated,
// scored, capped entity list per spec.md §4.I.
func Extract(text string, opts Options) []ExtractedEntity {
	if opts.MinConfidence == 0 && opts.MaxEntitiesPerMessage == 0 {
		opts = DefaultOptions
	}

	var candidates []ExtractedEntity
	for _, p := range patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			span := text[loc[0]:loc[1]]
			candidates = append(candidates, ExtractedEntity{
				Text:           span,
				NormalizedText: normalize(span),
				Type:           p.entityType,
				Confidence:     score(span, text, loc[0], p.base),
				StartPos:       loc[0],
				EndPos:         loc[1],
				Method:         repositories.MentionPattern,
				Context:        surroundingContext(text, loc[0], loc[1]),
			})
		}
	}

	deduped := dedup(candidates)

	out := deduped[:0]
	for _, e := range deduped {
		if e.Confidence >= opts.MinConfidence {
			out = append(out, e)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].StartPos < out[j].StartPos
	})

	cap := opts.MaxEntitiesPerMessage
	if cap <= 0 {
		cap = DefaultOptions.MaxEntitiesPerMessage
	}
	if len(out) > cap {
		out = out[:cap]
	}
	return out
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// dedup keeps the first pattern-ordered occurrence per normalizedText and
// drops stop words and candidates shorter than two characters.
func dedup(candidates []ExtractedEntity) []ExtractedEntity {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]ExtractedEntity, 0, len(candidates))
	for _, c := range candidates {
		if len(c.NormalizedText) < 2 {
			continue
		}
		if _, isStop := stopWords[c.NormalizedText]; isStop {
			continue
		}
		if _, ok := seen[c.NormalizedText]; ok {
			continue
		}
		seen[c.NormalizedText] = struct{}{}
		out = append(out, c)
	}
	return out
}

// score applies spec.md §4.I step 3's additive/negative confidence rules,
// starting from the matching pattern's own base confidence, not from a
// common 0.5 base shared by all patterns.
func score(span, fullText string, pos int, base float64) float64 {
	conf := base

	if strings.Contains(span, ".") || hasTitlePrefix(span) {
		conf += 0.1
	}
	if isProperCase(span) {
		conf += 0.1
	}
	if containsDigit(span) {
		conf += 0.05
	}

	lower := strings.ToLower(span)
	if _, isCommon := commonNouns[lower]; isCommon {
		conf -= 0.2
	}

	windowStart := max(0, pos-40)
	windowEnd := min(len(fullText), pos+len(span)+40)
	window := strings.ToLower(fullText[windowStart:windowEnd])

	if strings.Contains(window, "?") {
		conf -= 0.1
	}
	for _, cue := range hypotheticalCues {
		if strings.Contains(window, cue) {
			conf -= 0.15
			break
		}
	}

	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return conf
}

func hasTitlePrefix(span string) bool {
	for _, prefix := range []string{"Mr", "Mrs", "Ms", "Dr", "Prof"} {
		if strings.HasPrefix(span, prefix) {
			return true
		}
	}
	return false
}

func isProperCase(span string) bool {
	r := []rune(span)
	return len(r) > 0 && r[0] >= 'A' && r[0] <= 'Z'
}

func containsDigit(span string) bool {
	for _, r := range span {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

func surroundingContext(text string, start, end int) string {
	windowStart := max(0, start-30)
	windowEnd := min(len(text), end+30)
	return strings.TrimSpace(text[windowStart:windowEnd])
}
