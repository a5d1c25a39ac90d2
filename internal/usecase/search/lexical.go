package search

import (
	"regexp"
	"sort"
	"strings"

	"github.com/bioscope-cloud/bioscope/internal/domain"
	"github.com/bioscope-cloud/bioscope/pkg/stream"
)

// Term weights for the lexical fallback scorer. Empirically tuned values
// preserved for compatibility with existing relevance expectations; they are
// not a principled ranking function.
const (
	titleWeight     = 0.5
	abstractWeight  = 0.3
	meshWeight      = 0.4
	containsWeight  = 0.15
	minLexicalScore = 0.05
	minTermLength   = 2
)

// queryTerms lowercases and tokenizes a query, dropping terms shorter than
// two characters.
func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(query)))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= minTermLength {
			terms = append(terms, f)
		}
	}
	return terms
}

// termMatcher pairs a query term with its word-prefix pattern so the pattern
// is compiled once per query, not once per term and record.
type termMatcher struct {
	term string
	re   *regexp.Regexp
}

// compileTerms builds the matchers for a term list. The pattern matches the
// term at a word boundary (prefix match, so "gene" also matches "genes").
func compileTerms(terms []string) []termMatcher {
	matchers := make([]termMatcher, 0, len(terms))
	for _, term := range terms {
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(term))
		if err != nil {
			continue
		}
		matchers = append(matchers, termMatcher{term: term, re: re})
	}
	return matchers
}

// scoreRecord computes the lexical score of one record against the query
// terms. Per term: a word-boundary match in the title outweighs one in the
// abstract, which outweighs one in the MeSH terms; a bare substring match
// anywhere contributes a minimal weight. The per-record score is
//
//	min((sumOfTermWeights/termCount) * (matchedTerms/termCount + 0.5), 1)
func scoreRecord(payload map[string]any, terms []string) float64 {
	return scoreCompiled(payload, compileTerms(terms))
}

func scoreCompiled(payload map[string]any, matchers []termMatcher) float64 {
	if len(matchers) == 0 {
		return 0
	}

	paper := domain.Paper(payload)
	title := strings.ToLower(domain.PaperTitle(paper))
	abstract := strings.ToLower(domain.PaperAbstract(paper))
	mesh := strings.ToLower(strings.Join(domain.PaperMeshTerms(paper), " "))
	allText := title + " " + abstract + " " + mesh

	var sum float64
	var matched int

	for _, m := range matchers {
		switch {
		case m.re.MatchString(title):
			sum += titleWeight
			matched++
		case m.re.MatchString(abstract):
			sum += abstractWeight
			matched++
		case m.re.MatchString(mesh):
			sum += meshWeight
			matched++
		case strings.Contains(allText, m.term):
			sum += containsWeight
			matched++
		}
	}

	n := float64(len(matchers))
	score := (sum / n) * (float64(matched)/n + 0.5)
	if score > 1 {
		score = 1
	}
	return score
}

// rankLexical scores every record, drops those at or below the minimum
// threshold, and returns the top limit records by descending score. The
// input slice is not modified; scoring is deterministic for fixed inputs.
func rankLexical(points []stream.Hit, terms []string, limit int) []stream.Hit {
	matchers := compileTerms(terms)
	scored := make([]stream.Hit, 0, len(points))
	for _, p := range points {
		score := scoreCompiled(p.Payload, matchers)
		if score <= minLexicalScore {
			continue
		}
		hit := p
		hit.Score = score
		scored = append(scored, hit)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}
