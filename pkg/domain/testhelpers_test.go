package domain

import "context"

type staticRule struct {
	name   string
	result Result
	err    error
}

func (r staticRule) Name() string { return r.name }

func (r staticRule) Evaluate(context.Context, RuleView, []Change) (Result, error) {
	return r.result, r.err
}
