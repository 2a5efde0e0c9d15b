// Package relationships implements RelationshipDetector: deterministic
// co-occurrence pairing plus pattern-based relationship-type inference over
// a single message's extracted entities, per spec.md §4.J.
package relationships

import (
	"regexp"
	"sort"
	"strings"

	"github.com/convomem/convomem/pkg/knowledge/extractor"
	"github.com/convomem/convomem/pkg/repositories"
)

// DetectedRelationship is one candidate relationship between two entities
// found within a single message.
type DetectedRelationship struct {
	Source            extractor.ExtractedEntity
	Target            extractor.ExtractedEntity
	Type              repositories.RelationshipType
	Confidence        float64
	Evidence          []string
	ContextMessageIDs []string
}

// Options bounds pairing and filters low-confidence detections.
type Options struct {
	MaxCharDistance     int
	MaxSentenceDistance int
	MinConfidence       float64
}

// DefaultOptions matches spec.md §4.J's default minConfidence; the distance
// thresholds are chosen to keep co-occurrence pairing to roughly the same
// sentence or two, not the whole message.
var DefaultOptions = Options{MaxCharDistance: 200, MaxSentenceDistance: 2, MinConfidence: 0.4}

type relPattern struct {
	relType     repositories.RelationshipType
	re          *regexp.Regexp
	sourceTypes []repositories.EntityType
	targetTypes []repositories.EntityType
}

var patterns = []relPattern{
	{repositories.RelWorksFor,
		regexp.MustCompile(`\bworks?\s+(?:for|at)\b`),
		[]repositories.EntityType{repositories.EntityPerson},
		[]repositories.EntityType{repositories.EntityOrganization}},
	{repositories.RelCreatedBy,
		regexp.MustCompile(`\b(?:created|built|wrote|authored|designed)\s+by\b`),
		[]repositories.EntityType{repositories.EntityProduct, repositories.EntityTechnical},
		[]repositories.EntityType{repositories.EntityPerson, repositories.EntityOrganization}},
	{repositories.RelPartOf,
		regexp.MustCompile(`\bpart\s+of\b|\bbelongs?\s+to\b`),
		nil, nil},
	{repositories.RelCauseEffect,
		regexp.MustCompile(`\bcaused?\b|\bleads?\s+to\b|\bresulted?\s+in\b|\bbecause\s+of\b`),
		nil, nil},
	{repositories.RelTemporalSequence,
		regexp.MustCompile(`\bafter\b|\bbefore\b|\bthen\b|\bfollowed\s+by\b`),
		nil, nil},
	{repositories.RelDiscussedWith,
		regexp.MustCompile(`\bdiscussed\s+with\b|\btalked\s+to\b|\bmet\s+with\b`),
		[]repositories.EntityType{repositories.EntityPerson},
		[]repositories.EntityType{repositories.EntityPerson}},
}

var positiveCues = []string{"clearly", "specifically", "definitely", "confirmed"}
var negativeCues = []string{"maybe", "perhaps", "might", "possibly", "unsure", "?", "hypothetically"}

// Detect pairs every co-occurring entity within the distance thresholds and
// classifies each pair's relationship per the pattern set, falling back to
// "mentioned_with" when nothing more specific matches.
func Detect(entities []extractor.ExtractedEntity, text string, messageID string, opts Options) []DetectedRelationship {
	if opts.MaxCharDistance == 0 && opts.MaxSentenceDistance == 0 {
		opts = DefaultOptions
	}
	sentenceOf := sentenceIndexer(text)

	var detected []DetectedRelationship
	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			a, b := entities[i], entities[j]
			charDist := abs(b.StartPos - a.StartPos)
			if charDist > opts.MaxCharDistance {
				continue
			}
			sentDist := abs(sentenceOf(b.StartPos) - sentenceOf(a.StartPos))
			if sentDist > opts.MaxSentenceDistance {
				continue
			}

			windowStart, windowEnd := windowAround(a, b, text)
			window := text[windowStart:windowEnd]

			relType, evidence, matched := classify(window, a.Type, b.Type)
			if !matched {
				relType, evidence = repositories.RelMentionedWith, nil
			}

			source, target := orderByPattern(a, b, relType)
			conf := confidence(charDist, opts.MaxCharDistance, source.Confidence, target.Confidence, window)
			if conf < opts.MinConfidence {
				continue
			}

			detected = append(detected, DetectedRelationship{
				Source: source, Target: target, Type: relType,
				Confidence: conf, Evidence: evidence,
				ContextMessageIDs: []string{messageID},
			})
		}
	}

	return merge(detected)
}

// classify scans window for each pattern's regex and returns the first
// matching relationship type whose declared source/target types (if any)
// are compatible with the pair's actual types.
func classify(window string, aType, bType repositories.EntityType) (repositories.RelationshipType, []string, bool) {
	lower := strings.ToLower(window)
	for _, p := range patterns {
		loc := p.re.FindString(lower)
		if loc == "" {
			continue
		}
		if len(p.sourceTypes) > 0 && !typeIn(aType, p.sourceTypes) && !typeIn(bType, p.sourceTypes) {
			continue
		}
		if len(p.targetTypes) > 0 && !typeIn(aType, p.targetTypes) && !typeIn(bType, p.targetTypes) {
			continue
		}
		return p.relType, []string{strings.TrimSpace(window)}, true
	}
	return "", nil, false
}

func typeIn(t repositories.EntityType, set []repositories.EntityType) bool {
	for _, s := range set {
		if s == t {
			return true
		}
	}
	return false
}

// orderByPattern picks source/target so a's type matches the pattern's
// declared sourceTypes when possible, falling back to "earlier span is
// source" per spec.md §4.J.
func orderByPattern(a, b extractor.ExtractedEntity, relType repositories.RelationshipType) (extractor.ExtractedEntity, extractor.ExtractedEntity) {
	for _, p := range patterns {
		if p.relType != relType || len(p.sourceTypes) == 0 {
			continue
		}
		if typeIn(a.Type, p.sourceTypes) && !typeIn(b.Type, p.sourceTypes) {
			return a, b
		}
		if typeIn(b.Type, p.sourceTypes) && !typeIn(a.Type, p.sourceTypes) {
			return b, a
		}
	}
	if a.StartPos <= b.StartPos {
		return a, b
	}
	return b, a
}

func confidence(charDist, maxDist int, confA, confB float64, window string) float64 {
	proximity := 1.0 - float64(charDist)/float64(maxDist)
	if proximity < 0 {
		proximity = 0
	}
	conf := (proximity + (confA+confB)/2) / 2

	lower := strings.ToLower(window)
	for _, cue := range positiveCues {
		if strings.Contains(lower, cue) {
			conf += 0.1
			break
		}
	}
	for _, cue := range negativeCues {
		if strings.Contains(lower, cue) {
			conf -= 0.15
			break
		}
	}
	if strings.Contains(window, "?") {
		conf -= 0.1
	}

	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return conf
}

// merge combines multiple detections for the same (source,target,type) by
// taking the max confidence and the union of evidence, per spec.md §4.J.
type mergeKey struct {
	source, target string
	relType         repositories.RelationshipType
}

func merge(detected []DetectedRelationship) []DetectedRelationship {
	byKey := make(map[mergeKey]*DetectedRelationship)
	var order []mergeKey

	for _, d := range detected {
		k := mergeKey{d.Source.NormalizedText, d.Target.NormalizedText, d.Type}
		if existing, ok := byKey[k]; ok {
			if d.Confidence > existing.Confidence {
				existing.Confidence = d.Confidence
			}
			existing.Evidence = unionStrings(existing.Evidence, d.Evidence)
			continue
		}
		cp := d
		byKey[k] = &cp
		order = append(order, k)
	}

	out := make([]DetectedRelationship, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(a, b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func windowAround(a, b extractor.ExtractedEntity, text string) (int, int) {
	start, end := a.StartPos, a.EndPos
	if b.StartPos < start {
		start = b.StartPos
	}
	if b.EndPos > end {
		end = b.EndPos
	}
	if start < 0 {
		start = 0
	}
	if end > len(text) {
		end = len(text)
	}
	return start, end
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// sentenceIndexer returns a function mapping a character offset to the
// index of the sentence (split on '.', '!', '?') containing it.
func sentenceIndexer(text string) func(pos int) int {
	var boundaries []int
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			boundaries = append(boundaries, i)
		}
	}
	return func(pos int) int {
		idx := 0
		for _, b := range boundaries {
			if pos > b {
				idx++
			}
		}
		return idx
	}
}
