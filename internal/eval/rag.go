package eval

import (
	"fmt"
	"time"

	"github.com/tradeassist/engine/internal/domain"
)

func ragEvaluators() []Evaluator {
	return []Evaluator{
		{Name: "faithfulness", Category: domain.EvalCategoryRAG, EvaluatorType: "rule_based", Fn: evalFaithfulness},
		{Name: "answer_relevance", Category: domain.EvalCategoryRAG, EvaluatorType: "rule_based", Fn: evalAnswerRelevance},
		{Name: "retrieval_relevance", Category: domain.EvalCategoryRAG, EvaluatorType: "rule_based", Fn: evalRetrievalRelevance},
		{Name: "news_freshness", Category: domain.EvalCategoryRAG, EvaluatorType: "rule_based", Fn: evalNewsFreshness},
		{Name: "cluster_dedup_score", Category: domain.EvalCategoryRAG, EvaluatorType: "rule_based", Fn: evalClusterDedupScore},
		{Name: "news_evidence_integrity", Category: domain.EvalCategoryRAG, EvaluatorType: "rule_based", Fn: evalNewsEvidenceIntegrity},
	}
}

// evalNewsFreshness penalizes evidence published more than 48h before the
// run (the same staleness tolerance data_freshness applies to EOD candles).
// Runs with no news evidence have nothing to be stale, so they score 1.0.
func evalNewsFreshness(f *Facts) Verdict {
	if len(f.NewsEvidence) == 0 {
		return Verdict{Score: 1.0, Reasons: []string{"no news evidence retrieved"}}
	}
	asOf := nowUTC()
	if f.Run != nil && !f.Run.CreatedAt.IsZero() {
		asOf = f.Run.CreatedAt
	}
	fresh := 0
	for _, item := range f.NewsEvidence {
		if asOf.Sub(item.PublishedAt) <= 48*time.Hour {
			fresh++
		}
	}
	score := float64(fresh) / float64(len(f.NewsEvidence))
	return Verdict{
		Score:   score,
		Reasons: []string{fmt.Sprintf("%d/%d items published within 48h of run creation", fresh, len(f.NewsEvidence))},
	}
}

// evalClusterDedupScore penalizes near-duplicate headlines (title token
// overlap >= 80%) counted once each, the same keyword-overlap proxy
// faithfulness uses for claim grounding.
func evalClusterDedupScore(f *Facts) Verdict {
	if len(f.NewsEvidence) == 0 {
		return Verdict{Score: 1.0, Reasons: []string{"no news evidence retrieved"}}
	}
	clusters := 0
	seen := make([]string, 0, len(f.NewsEvidence))
	for _, item := range f.NewsEvidence {
		duplicate := false
		for _, prior := range seen {
			if tokenOverlap(item.Title, prior) >= 0.80 {
				duplicate = true
				break
			}
		}
		if !duplicate {
			clusters++
			seen = append(seen, item.Title)
		}
	}
	score := float64(clusters) / float64(len(f.NewsEvidence))
	return Verdict{
		Score:   score,
		Reasons: []string{fmt.Sprintf("%d distinct clusters among %d items", clusters, len(f.NewsEvidence))},
		Details: map[string]interface{}{"distinct_clusters": clusters, "total_items": len(f.NewsEvidence)},
	}
}

// evalNewsEvidenceIntegrity requires every news item carry a source and a
// retrievable URL; an item missing either can't be traced back for audit.
func evalNewsEvidenceIntegrity(f *Facts) Verdict {
	if len(f.NewsEvidence) == 0 {
		return Verdict{Score: 1.0, Reasons: []string{"no news evidence retrieved"}}
	}
	intact := 0
	for _, item := range f.NewsEvidence {
		if item.Source != "" && item.URL != "" {
			intact++
		}
	}
	score := float64(intact) / float64(len(f.NewsEvidence))
	return Verdict{
		Score:   score,
		Reasons: []string{fmt.Sprintf("%d/%d items carry source+url", intact, len(f.NewsEvidence))},
	}
}

// evalFaithfulness checks that numeric claims in the decision's
// rationale overlap the text of the run's other artifacts by at least
// 30% tokens.
func evalFaithfulness(f *Facts) Verdict {
	decisionArtifact, ok := f.Artifact("decision")
	if !ok {
		return Verdict{Score: 1.0, Reasons: []string{"no decision to check for faithfulness"}}
	}
	_ = decisionArtifact

	var evidenceText string
	for _, a := range f.Artifacts {
		if a.ArtifactType == "decision" {
			continue
		}
		evidenceText += string(a.ArtifactJSON) + " "
	}

	claims := 0
	grounded := 0
	for _, item := range decisionEvidenceClaims(f) {
		claims++
		if tokenOverlap(item, evidenceText) >= 0.30 {
			grounded++
		}
	}
	if claims == 0 {
		return Verdict{Score: 1.0, Reasons: []string{"no numeric claims to check"}}
	}
	score := float64(grounded) / float64(claims)
	return Verdict{
		Score:   score,
		Reasons: []string{fmt.Sprintf("%d/%d claims grounded at >=30%% token overlap", grounded, claims)},
		Details: map[string]interface{}{"claims_checked": claims, "claims_grounded": grounded},
	}
}

func decisionEvidenceClaims(f *Facts) []string {
	var claims []string
	if artifact, ok := f.Artifact("decision"); ok {
		claims = append(claims, numericClaims(string(artifact.ArtifactJSON))...)
	}
	return claims
}

// evalAnswerRelevance weights intent match, specificity, and
// completeness 0.4/0.3/0.3.
func evalAnswerRelevance(f *Facts) Verdict {
	if f.Run == nil {
		return Verdict{Score: 0, Reasons: []string{"no run to evaluate"}}
	}
	intentMatch := 1.0
	if f.Run.Intent == domain.IntentTradeExecution && f.Run.TradeProposal == nil {
		intentMatch = 0
	}
	specificity := 0.5
	if f.Run.TradeProposal != nil && f.Run.TradeProposal.Asset != "" {
		specificity = 1.0
	}
	completeness := 0.5
	if f.Run.IsTerminal() {
		completeness = 1.0
	}
	score := 0.4*intentMatch + 0.3*specificity + 0.3*completeness
	return Verdict{
		Score: score,
		Reasons: []string{fmt.Sprintf("intent_match=%.1f specificity=%.1f completeness=%.1f", intentMatch, specificity, completeness)},
	}
}

func evalRetrievalRelevance(f *Facts) Verdict {
	if len(f.NewsEvidence) == 0 {
		return Verdict{Score: 1.0, Reasons: []string{"no news evidence retrieved; not applicable"}}
	}
	symbol := ""
	if f.Run != nil && f.Run.TradeProposal != nil {
		symbol = f.Run.TradeProposal.Asset
	}
	mentions := 0
	for _, item := range f.NewsEvidence {
		if symbol != "" && (containsFold(item.Title, symbol) || containsFold(item.Summary, symbol)) {
			mentions++
		}
	}
	score := 1.0
	if symbol != "" && len(f.NewsEvidence) > 0 {
		score = float64(mentions) / float64(len(f.NewsEvidence))
	}
	return Verdict{Score: score, Reasons: []string{fmt.Sprintf("%d/%d evidence items mention %s", mentions, len(f.NewsEvidence), symbol)}}
}

func containsFold(s, substr string) bool {
	if substr == "" {
		return false
	}
	return len(s) >= len(substr) && indexFold(s, substr) >= 0
}

func indexFold(s, substr string) int {
	ls, lsub := toLower(s), toLower(substr)
	for i := 0; i+len(lsub) <= len(ls); i++ {
		if ls[i:i+len(lsub)] == lsub {
			return i
		}
	}
	return -1
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
