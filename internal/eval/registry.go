package eval

// buildRegistry assembles the fixed-order evaluator list, grouped by
// category in the same order the eval harness documents them: data,
// compliance, quality, performance, rag, safety. New evaluators are
// added by appending to the relevant category function.
func buildRegistry() []Evaluator {
	var all []Evaluator
	all = append(all, dataEvaluators()...)
	all = append(all, complianceEvaluators()...)
	all = append(all, qualityEvaluators()...)
	all = append(all, performanceEvaluators()...)
	all = append(all, ragEvaluators()...)
	all = append(all, safetyEvaluators()...)
	return all
}

// Definition is the read-only shape the eval dashboard exposes for
// GET /definitions and GET /definition/{eval_name}.
type Definition struct {
	Name          string `json:"eval_name"`
	Category      string `json:"category"`
	EvaluatorType string `json:"evaluator_type"`
	NewsGated     bool   `json:"news_gated"`
}

// Definitions lists every evaluator currently in Registry, in the same
// fixed order evals run in.
func Definitions() []Definition {
	defs := make([]Definition, len(Registry))
	for i, e := range Registry {
		defs[i] = Definition{
			Name:          e.Name,
			Category:      string(e.Category),
			EvaluatorType: e.EvaluatorType,
			NewsGated:     isNewsGated(e.Name),
		}
	}
	return defs
}

// DefinitionByName looks up one evaluator's definition by name.
func DefinitionByName(name string) (Definition, bool) {
	for _, d := range Definitions() {
		if d.Name == name {
			return d, true
		}
	}
	return Definition{}, false
}
