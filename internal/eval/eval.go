// Package eval implements the rule-based eval harness: a fixed-order
// registry of pure graders, each scoring one property of a completed run
// against its own persisted evidence (artifacts, tool calls, orders,
// policy events). A grader never touches the network; it only reads what
// the DAG pipeline already wrote.
package eval

import (
	"context"

	"github.com/sourcegraph/conc/pool"

	"github.com/tradeassist/engine/internal/domain"
)

// Facts bundles every piece of persisted evidence a grader might need,
// loaded once per run so graders stay pure functions.
type Facts struct {
	Run           *domain.Run
	Nodes         map[domain.DagNodeName]domain.DagNode
	Artifacts     []domain.RunArtifact
	PolicyEvent   *domain.PolicyEvent
	Orders        []domain.Order
	Fills         map[string][]domain.Fill // keyed by order_id
	ToolCalls     []domain.ToolCall
	Rankings      []domain.Ranking
	CandleBatches []domain.CandleBatch
	RunEvents     []domain.RunEvent
	NewsEvidence  []domain.NewsItem
}

// Artifact returns the most recently written artifact of the given type,
// or false if none exists.
func (f *Facts) Artifact(t domain.ArtifactType) (domain.RunArtifact, bool) {
	var best domain.RunArtifact
	found := false
	for _, a := range f.Artifacts {
		if a.ArtifactType != t {
			continue
		}
		if !found || a.CreatedAt.After(best.CreatedAt) {
			best = a
			found = true
		}
	}
	return best, found
}

// FactsLoader loads every Facts field the registry needs for one run.
// Implementations live in internal/store, which already owns the
// connection pool; this package only consumes the narrow interface to
// avoid importing pgx directly.
type FactsLoader interface {
	Load(ctx context.Context, runID, tenantID string) (*Facts, error)
}

// Verdict is one grader's output before it is stamped with identity and
// persisted as a domain.EvalResult row.
type Verdict struct {
	Score       float64
	Reasons     []string
	Thresholds  map[string]interface{}
	Details     map[string]interface{}
}

// Evaluator is one named, categorized pure grading function.
type Evaluator struct {
	Name          string
	Category      domain.EvalCategory
	EvaluatorType string
	Fn            func(f *Facts) Verdict
}

// Registry is the fixed-order list of evaluators the harness runs for
// every completed run. Order matters for reproducibility of eval_results
// row ordering, not for correctness between evaluators (each is pure).
var Registry = buildRegistry()

// ResultWriter persists one eval_results row per grader.
type ResultWriter interface {
	WriteResult(ctx context.Context, result domain.EvalResult) error
}

// Runner executes the full registry against a run's Facts, isolating
// each grader so a single panicking or misbehaving evaluator never
// aborts the rest of the harness.
type Runner struct {
	Loader  FactsLoader
	Results ResultWriter
}

func NewRunner(loader FactsLoader, results ResultWriter) *Runner {
	return &Runner{Loader: loader, Results: results}
}

// Run grades a completed run against the full registry and persists one
// row per evaluator, returning the full set for the caller (e.g. to fire
// analytic events). It never returns an error for an individual grader
// failure; only a Facts-load failure aborts the whole pass.
func (r *Runner) Run(ctx context.Context, runID, tenantID string) ([]domain.EvalResult, error) {
	facts, err := r.Loader.Load(ctx, runID, tenantID)
	if err != nil {
		return nil, err
	}

	newsEnabled := facts.Run != nil && facts.Run.NewsEnabled
	results := make([]domain.EvalResult, len(Registry))

	p := pool.New().WithMaxGoroutines(10)
	for i, evaluator := range Registry {
		i, evaluator := i, evaluator
		p.Go(func() {
			results[i] = runOne(evaluator, facts, runID, newsEnabled)
		})
	}
	p.Wait()

	for _, result := range results {
		_ = r.Results.WriteResult(ctx, result)
	}
	return results, nil
}

// runOne recovers from a panicking grader, turning it into a score-0 row
// carrying the panic message rather than aborting the harness.
func runOne(e Evaluator, facts *Facts, runID string, newsEnabled bool) (result domain.EvalResult) {
	result = domain.EvalResult{
		EvalID:        "eval_" + runID + "_" + e.Name,
		RunID:         runID,
		EvalName:      e.Name,
		EvaluatorType: e.EvaluatorType,
		EvalCategory:  e.Category,
	}

	defer func() {
		if r := recover(); r != nil {
			result.Score = 0
			result.Reasons = []string{"evaluator panicked: " + toString(r)}
		}
	}()

	if !newsEnabled && isNewsGated(e.Name) {
		result.Score = 1.0
		result.Reasons = []string{"Skipped: news disabled"}
		return result
	}

	verdict := e.Fn(facts)
	result.Score = verdict.Score
	result.Reasons = verdict.Reasons
	result.Thresholds = marshalMap(verdict.Thresholds)
	result.Details = marshalMap(verdict.Details)
	return result
}

var newsGatedEvals = map[string]bool{
	"news_freshness":          true,
	"cluster_dedup_score":     true,
	"news_evidence_integrity": true,
}

func isNewsGated(name string) bool { return newsGatedEvals[name] }

func toString(v interface{}) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "non-string panic value"
}
