// Package optimizer derives advisory optimization suggestions from a snapshot
// and the process table. It performs no I/O and never executes commands.
package optimizer

import (
	"github.com/rcourtman/pulse-perfmon/internal/models"
)

// Rule evaluates one heuristic against a snapshot and process list.
type Rule interface {
	Name() string
	Evaluate(snap models.Snapshot, procs []models.ProcessInfo) []models.Suggestion
}

// RuleFunc adapts a plain function to the Rule interface.
type RuleFunc func(snap models.Snapshot, procs []models.ProcessInfo) []models.Suggestion

type namedRule struct {
	name string
	fn   RuleFunc
}

func (r namedRule) Name() string { return r.name }

func (r namedRule) Evaluate(snap models.Snapshot, procs []models.ProcessInfo) []models.Suggestion {
	return r.fn(snap, procs)
}

// NewRule wraps fn as a Rule called name.
func NewRule(name string, fn RuleFunc) Rule {
	return namedRule{name: name, fn: fn}
}

// Analyzer runs an ordered list of rules.
type Analyzer struct {
	rules []Rule
}

// New creates an analyzer. With no rules the default set is used.
func New(rules ...Rule) *Analyzer {
	if len(rules) == 0 {
		rules = DefaultRules(DefaultThresholds(), nil)
	}
	return &Analyzer{rules: rules}
}

// Rules returns the names of the configured rules in evaluation order.
func (a *Analyzer) Rules() []string {
	names := make([]string, 0, len(a.rules))
	for _, r := range a.rules {
		names = append(names, r.Name())
	}
	return names
}

// Analyze concatenates the output of every rule in order. The result is never nil.
func (a *Analyzer) Analyze(snap models.Snapshot, procs []models.ProcessInfo) []models.Suggestion {
	suggestions := make([]models.Suggestion, 0)
	for _, r := range a.rules {
		suggestions = append(suggestions, r.Evaluate(snap, procs)...)
	}
	return suggestions
}
