package generation

import (
	"sort"

	"studyforge/internal/config"
)

// lightweightTasks route to the lightweight generator regardless of complexity.
var lightweightTasks = map[TaskType]bool{
	TaskConcepts: true,
}

// Router holds the registered generators and the static routing table.
type Router struct {
	routing    config.Routing
	order      []string
	generators map[string]Generator
}

// NewRouter builds a router from the generation config. Generators whose id is
// not referenced by the config are still registered and reachable by id.
func NewRouter(cfg config.Generation, generators ...Generator) *Router {
	r := &Router{
		routing:    cfg.Routing,
		order:      append([]string(nil), cfg.FallbackOrder...),
		generators: make(map[string]Generator, len(generators)),
	}
	for _, gen := range generators {
		if gen == nil {
			continue
		}
		r.generators[gen.ID()] = gen
	}
	return r
}

// SelectGenerator returns the generator id for a request class.
func (r *Router) SelectGenerator(task TaskType, complexity Complexity, streaming bool) string {
	switch {
	case streaming:
		return r.routing.Streaming
	case complexity == ComplexitySimple, lightweightTasks[task]:
		return r.routing.Lightweight
	default:
		return r.routing.Default
	}
}

// FallbackChain returns the selected generator followed by the configured
// fallback order, deduplicated and limited to registered generators.
func (r *Router) FallbackChain(task TaskType, complexity Complexity) []string {
	return r.chain(r.SelectGenerator(task, complexity, false))
}

// StreamingChain is FallbackChain for streaming requests. Only generators that
// implement StreamGenerator are included.
func (r *Router) StreamingChain(task TaskType, complexity Complexity) []string {
	ids := r.chain(r.SelectGenerator(task, complexity, true))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := r.generators[id].(StreamGenerator); ok {
			out = append(out, id)
		}
	}
	return out
}

func (r *Router) chain(first string) []string {
	seen := make(map[string]bool, len(r.order)+1)
	chain := make([]string, 0, len(r.order)+1)
	for _, id := range append([]string{first}, r.order...) {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := r.generators[id]; !ok {
			continue
		}
		chain = append(chain, id)
	}
	return chain
}

// Generator returns the registered generator with id.
func (r *Router) Generator(id string) (Generator, bool) {
	gen, ok := r.generators[id]
	return gen, ok
}

// IDs lists registered generator ids in sorted order.
func (r *Router) IDs() []string {
	ids := make([]string, 0, len(r.generators))
	for id := range r.generators {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
