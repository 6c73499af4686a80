package eval

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

func nowUTC() time.Time { return time.Now().UTC() }

func marshalMap(m map[string]interface{}) json.RawMessage {
	if len(m) == 0 {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return b
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true, "were": true,
	"of": true, "to": true, "in": true, "for": true, "and": true, "or": true, "at": true,
}

var wordPattern = regexp.MustCompile(`\w+`)

// tokenOverlap is the faithfulness eval's keyword-overlap proxy: the
// fraction of claim tokens (minus stop words) also present in evidence.
func tokenOverlap(claim, evidence string) float64 {
	claimTokens := tokenSet(claim)
	evidenceTokens := tokenSet(evidence)
	if len(claimTokens) == 0 {
		return 0
	}
	overlap := 0
	for t := range claimTokens {
		if stopWords[t] {
			continue
		}
		if evidenceTokens[t] {
			overlap++
		}
	}
	meaningful := 0
	for t := range claimTokens {
		if !stopWords[t] {
			meaningful++
		}
	}
	if meaningful == 0 {
		return 1.0
	}
	return float64(overlap) / float64(meaningful)
}

func tokenSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, w := range wordPattern.FindAllString(strings.ToLower(s), -1) {
		set[w] = true
	}
	return set
}

// numericClaims extracts sentence-like fragments containing a digit, the
// same heuristic the faithfulness grader uses to find factual claims in
// free-text rationale.
var digitPattern = regexp.MustCompile(`\d`)

func numericClaims(text string) []string {
	if text == "" {
		return nil
	}
	var claims []string
	for _, sentence := range regexp.MustCompile(`[.!?\n]`).Split(text, -1) {
		s := strings.TrimSpace(sentence)
		if s != "" && digitPattern.MatchString(s) {
			claims = append(claims, s)
		}
		if len(claims) == 10 {
			break
		}
	}
	return claims
}
