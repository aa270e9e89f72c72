// Package resolve computes a single consistent set of (package,
// version) selections from dependency constraints, querying a
// read-only candidate source. The search is greedy over version
// precedence with backtracking, driven by an explicit decision stack
// so depth is bounded and the run can be cancelled mid-search.
package resolve

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"depot/internal/digest"
	"depot/internal/version"
)

// Requirement is one dependency constraint: a package name and a
// version range expression.
type Requirement struct {
	Name       string
	Constraint string
}

// Candidate is one installable version of a package, as reported by
// the source, together with its own declared constraints.
type Candidate struct {
	Version      string
	Digest       digest.Digest
	Dependencies map[string]string
}

// Source supplies candidate versions for a package, ordered highest
// precedence first. Implementations are read-only: the resolver
// never mutates registry state. Results are cached per name for the
// duration of one resolution, so versions published mid-run are
// tolerated but not observed.
type Source interface {
	ListVersions(ctx context.Context, name string) ([]Candidate, error)
}

// Selection is the resolver's choice for one package.
type Selection struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Digest       digest.Digest     `json:"digest"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Resolution maps each reachable package name to exactly one
// Selection. It is computed fresh per request and never persisted.
type Resolution map[string]Selection

// ConstraintOrigin records where a constraint on a package came
// from: "root" for the requesting project's direct dependencies,
// "name@version" for a selected package's declaration.
type ConstraintOrigin struct {
	Origin     string `json:"origin"`
	Constraint string `json:"constraint"`
}

// UnsatisfiableError reports that no consistent version set exists,
// naming the conflicted package and the constraint set imposed on it
// so the caller can adjust input.
type UnsatisfiableError struct {
	Name        string             `json:"name"`
	Constraints []ConstraintOrigin `json:"constraints"`
}

func (e *UnsatisfiableError) Error() string {
	parts := make([]string, len(e.Constraints))
	for i, c := range e.Constraints {
		parts[i] = fmt.Sprintf("%s requires %s", c.Origin, c.Constraint)
	}
	return fmt.Sprintf("no version of %s satisfies: %s", e.Name, strings.Join(parts, "; "))
}

// constraintRec is one parsed constraint on a package, with its
// origin for conflict reporting.
type constraintRec struct {
	origin string
	expr   string
	c      *semver.Constraints
}

// frame is one decision point on the backtracking stack.
type frame struct {
	name          string
	candidates    []Candidate // viable under the constraints at decision time
	idx           int
	applied       []string // packages this choice added a constraint to
	pendingBefore []string // pending queue before this choice's dependencies
}

type resolver struct {
	ctx         context.Context
	source      Source
	cache       map[string][]Candidate
	constraints map[string][]constraintRec
	selected    map[string]Selection
	pending     []string // sorted; smallest name decided first
	stack       []frame
	conflict    *UnsatisfiableError
}

// Resolve computes a Resolution for the given direct requirements.
// Malformed constraint expressions fail before the search starts.
// Given an identical source state and identical input the result is
// identical: pending names are processed in sorted order and
// candidates in a total precedence order.
func Resolve(ctx context.Context, source Source, reqs []Requirement) (Resolution, error) {
	r := &resolver{
		ctx:         ctx,
		source:      source,
		cache:       make(map[string][]Candidate),
		constraints: make(map[string][]constraintRec),
		selected:    make(map[string]Selection),
	}

	for _, req := range reqs {
		c, err := version.ParseConstraint(req.Constraint)
		if err != nil {
			return nil, fmt.Errorf("requirement %s: %w", req.Name, err)
		}
		r.constraints[req.Name] = append(r.constraints[req.Name], constraintRec{
			origin: "root",
			expr:   req.Constraint,
			c:      c,
		})
		r.enqueue(req.Name)
	}

	if err := r.run(); err != nil {
		return nil, err
	}

	out := make(Resolution, len(r.selected))
	for name, sel := range r.selected {
		out[name] = sel
	}
	return out, nil
}

func (r *resolver) run() error {
	for len(r.pending) > 0 {
		if err := r.ctx.Err(); err != nil {
			return err
		}

		name := r.pending[0]
		r.pending = r.pending[1:]

		if sel, ok := r.selected[name]; ok {
			if r.satisfiesAll(name, sel.Version) {
				continue
			}
			r.recordConflict(name)
			if err := r.backtrack(); err != nil {
				return err
			}
			continue
		}

		viable, err := r.viableCandidates(name)
		if err != nil {
			return err
		}
		if len(viable) == 0 {
			r.recordConflict(name)
			if err := r.backtrack(); err != nil {
				return err
			}
			continue
		}

		f := frame{
			name:          name,
			candidates:    viable,
			idx:           0,
			pendingBefore: append([]string(nil), r.pending...),
		}
		r.stack = append(r.stack, f)

		if ok, err := r.apply(&r.stack[len(r.stack)-1]); err != nil {
			return err
		} else if !ok {
			if err := r.backtrack(); err != nil {
				return err
			}
		}
	}

	return nil
}

// apply selects the frame's current candidate and propagates its
// dependency constraints. It returns false when a newly added
// constraint contradicts an already-selected package.
func (r *resolver) apply(f *frame) (bool, error) {
	cand := f.candidates[f.idx]
	r.selected[f.name] = Selection{
		Name:         f.name,
		Version:      cand.Version,
		Digest:       cand.Digest,
		Dependencies: cand.Dependencies,
	}
	origin := fmt.Sprintf("%s@%s", f.name, cand.Version)

	deps := make([]string, 0, len(cand.Dependencies))
	for dep := range cand.Dependencies {
		deps = append(deps, dep)
	}
	sort.Strings(deps)

	for _, dep := range deps {
		expr := cand.Dependencies[dep]
		c, err := version.ParseConstraint(expr)
		if err != nil {
			// Stored manifests were validated at publish time, so a
			// malformed constraint here is an index fault, not a
			// resolution outcome.
			return false, fmt.Errorf("corrupt constraint %q on %s: %w", expr, origin, err)
		}
		r.constraints[dep] = append(r.constraints[dep], constraintRec{origin: origin, expr: expr, c: c})
		f.applied = append(f.applied, dep)

		if sel, ok := r.selected[dep]; ok {
			if !r.satisfiesAll(dep, sel.Version) {
				r.recordConflict(dep)
				return false, nil
			}
			continue
		}
		r.enqueue(dep)
	}

	return true, nil
}

// backtrack undoes decisions until a frame with an untried candidate
// remains, then advances it. Exhausting the stack surfaces the most
// recent conflict.
func (r *resolver) backtrack() error {
	for len(r.stack) > 0 {
		if err := r.ctx.Err(); err != nil {
			return err
		}

		f := &r.stack[len(r.stack)-1]

		// Undo this frame's selection and constraint additions.
		delete(r.selected, f.name)
		for _, dep := range f.applied {
			recs := r.constraints[dep]
			r.constraints[dep] = recs[:len(recs)-1]
		}
		f.applied = nil
		r.pending = append([]string(nil), f.pendingBefore...)

		if f.idx+1 < len(f.candidates) {
			f.idx++
			ok, err := r.apply(f)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
			continue
		}

		r.stack = r.stack[:len(r.stack)-1]
	}

	if r.conflict != nil {
		return r.conflict
	}
	return &UnsatisfiableError{Name: "unknown"}
}

// viableCandidates returns the cached candidate list for name,
// filtered to versions satisfying every constraint collected so far,
// highest precedence first.
func (r *resolver) viableCandidates(name string) ([]Candidate, error) {
	all, ok := r.cache[name]
	if !ok {
		var err error
		all, err = r.source.ListVersions(r.ctx, name)
		if err != nil {
			return nil, fmt.Errorf("listing versions of %s: %w", name, err)
		}
		r.cache[name] = all
	}

	var viable []Candidate
	for _, cand := range all {
		if r.satisfiesAll(name, cand.Version) {
			viable = append(viable, cand)
		}
	}
	return viable, nil
}

func (r *resolver) satisfiesAll(name, ver string) bool {
	v, err := semver.StrictNewVersion(ver)
	if err != nil {
		return false
	}
	for _, rec := range r.constraints[name] {
		if !rec.c.Check(v) {
			return false
		}
	}
	return true
}

func (r *resolver) recordConflict(name string) {
	recs := r.constraints[name]
	origins := make([]ConstraintOrigin, len(recs))
	for i, rec := range recs {
		origins[i] = ConstraintOrigin{Origin: rec.origin, Constraint: rec.expr}
	}
	r.conflict = &UnsatisfiableError{Name: name, Constraints: origins}
}

// enqueue inserts name into the sorted pending queue if absent.
func (r *resolver) enqueue(name string) {
	i := sort.SearchStrings(r.pending, name)
	if i < len(r.pending) && r.pending[i] == name {
		return
	}
	r.pending = append(r.pending, "")
	copy(r.pending[i+1:], r.pending[i:])
	r.pending[i] = name
}
