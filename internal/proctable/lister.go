package proctable

import (
	"context"
	"fmt"

	"github.com/loykin/agentwatch/internal/runner"
)

// Listing is the outcome of one enumeration attempt.
// Schema is empty when every candidate failed; Processes is then empty too.
type Listing struct {
	Processes []RawProcess
	Schema    string
	Failures  []error
}

// Lister enumerates processes through a Runner, falling back across schemas.
type Lister struct {
	runner  runner.Runner
	schemas []Schema
}

// NewLister uses DefaultSchemas when schemas is empty.
func NewLister(r runner.Runner, schemas []Schema) *Lister {
	if len(schemas) == 0 {
		schemas = DefaultSchemas()
	}
	cp := make([]Schema, len(schemas))
	copy(cp, schemas)
	return &Lister{runner: r, schemas: cp}
}

// List tries each schema in declared order and returns the first one that
// both runs and parses. It never returns an error: a failed enumeration
// yields an empty listing and is retried on the next tick.
func (l *Lister) List(ctx context.Context) Listing {
	var res Listing
	for _, s := range l.schemas {
		if err := ctx.Err(); err != nil {
			res.Failures = append(res.Failures, err)
			break
		}
		text, err := l.runner.ListProcesses(ctx, s.Format())
		if err != nil {
			res.Failures = append(res.Failures, fmt.Errorf("schema %s: %w", s.Name, err))
			continue
		}
		procs, err := Parse(text, s)
		if err != nil {
			res.Failures = append(res.Failures, err)
			continue
		}
		res.Processes = procs
		res.Schema = s.Name
		return res
	}
	res.Processes = []RawProcess{}
	return res
}

// Schemas returns the configured fallback order.
func (l *Lister) Schemas() []Schema {
	out := make([]Schema, len(l.schemas))
	copy(out, l.schemas)
	return out
}
