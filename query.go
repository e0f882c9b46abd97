package iamgraph

import (
	"context"
	"strings"

	"github.com/samber/lo"
)

// Engine answers permission queries against a built [Graph]. It holds no
// mutable state of its own: every query keeps its traversal state (the
// visited-set guarding cyclic trust chains) on its own stack, so a single
// Engine may serve concurrent queries.
type Engine struct {
	graph *Graph
}

func NewEngine(g *Graph) *Engine {
	return &Engine{graph: g}
}

// Grant is one (action, resource, effect) tuple contributed by a policy
// document reachable from the queried identity, annotated with the source
// document and the attribution path (direct, via-group:NAME or
// via-role:CHAIN).
type Grant struct {
	Action      string `json:"action"`
	Resource    string `json:"resource"`
	Effect      Effect `json:"effect"`
	Source      string `json:"source"`
	Path        string `json:"path"`
	Conditional bool   `json:"conditional,omitempty"`
}

// Match is one identity found by [Engine.WhoCanDo], with the allow patterns
// that overlapped the query. Via names the role-assumption chain when the
// permission is only reachable by assuming a role.
type Match struct {
	Identity    string       `json:"identity"`
	Kind        IdentityKind `json:"kind"`
	Name        string       `json:"name"`
	Actions     []string     `json:"actions"`
	Resources   []string     `json:"resources"`
	Via         string       `json:"via,omitempty"`
	Conditional bool         `json:"conditional,omitempty"`
}

// Check evaluates a single concrete (action, resource) pair against the
// identity's effective policies. Permissions reachable only through role
// assumption are not considered here; use [Engine.WhatCanDo] for those.
func (e *Engine) Check(ctx context.Context, identity, action, resource string) (Verdict, error) {
	if err := validatePattern(action); err != nil {
		return Verdict{}, err
	}
	if err := validatePattern(resource); err != nil {
		return Verdict{}, err
	}
	id, ok := e.graph.Identity(identity)
	if !ok {
		return Verdict{}, &UnknownIdentityError{ID: identity}
	}
	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}
	return Evaluate(effectiveDocs(e.graph, id), action, resource), nil
}

// WhatCanDo returns every (action, resource, effect, source) tuple granted
// to the identity by its direct, inline and group-inherited policies, plus
// the policies of every role transitively reachable through trust
// relationships. Cyclic trust chains terminate via a per-query visited-set;
// each role contributes exactly once. Tuples are deduplicated by identity,
// keeping the first attribution encountered.
func (e *Engine) WhatCanDo(ctx context.Context, identity string) ([]Grant, error) {
	id, ok := e.graph.Identity(identity)
	if !ok {
		return nil, &UnknownIdentityError{ID: identity}
	}

	type grantKey struct {
		action, resource string
		effect           Effect
		source           string
	}
	seen := map[grantKey]bool{}
	grants := []Grant{}
	collect := func(pols []EffectivePolicy, chain []string) {
		for _, ep := range pols {
			path := attributionPath(ep.Via, chain)
			for i := range ep.Doc.Statements {
				stmt := &ep.Doc.Statements[i]
				for _, a := range stmt.Action {
					for _, r := range stmt.Resource {
						k := grantKey{a, r, stmt.Effect, ep.Doc.ID}
						if seen[k] {
							continue
						}
						seen[k] = true
						grants = append(grants, Grant{
							Action:      a,
							Resource:    r,
							Effect:      stmt.Effect,
							Source:      ep.Doc.ID,
							Path:        path,
							Conditional: stmt.HasCondition(),
						})
					}
				}
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	collect(e.graph.EffectivePolicies(id), nil)

	type hop struct {
		role  *Identity
		chain []string
	}
	visited := map[string]bool{id.ARN: true}
	queue := []hop{}
	for _, r := range e.graph.AssumableRoles(id) {
		if !visited[r.ARN] {
			visited[r.ARN] = true
			queue = append(queue, hop{r, []string{r.Name}})
		}
	}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cur := queue[0]
		queue = queue[1:]
		collect(e.graph.EffectivePolicies(cur.role), cur.chain)
		for _, r := range e.graph.AssumableRoles(cur.role) {
			if !visited[r.ARN] {
				visited[r.ARN] = true
				next := append(append([]string{}, cur.chain...), r.Name)
				queue = append(queue, hop{r, next})
			}
		}
	}
	return grants, nil
}

// WhoCanDo returns every identity allowed to perform an action matching
// actionPattern on a resource matching resourcePattern. Both query patterns
// may themselves contain wildcards; an identity matches when some concrete
// (action, resource) pair lies in the overlap of the query patterns and one
// of its Allow statements, with no explicit Deny covering that overlap.
// Identities that only reach the permission by assuming a role are included
// with the chain recorded in Via.
func (e *Engine) WhoCanDo(ctx context.Context, actionPattern, resourcePattern string) ([]Match, error) {
	if err := validatePattern(actionPattern); err != nil {
		return nil, err
	}
	if err := validatePattern(resourcePattern); err != nil {
		return nil, err
	}

	matches := []Match{}
	for id := range e.graph.Identities() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if m, ok := e.matchIdentity(id, actionPattern, resourcePattern); ok {
			matches = append(matches, m)
			continue
		}
		if m, ok := e.matchViaRoles(id, actionPattern, resourcePattern); ok {
			matches = append(matches, m)
		}
	}
	return matches, nil
}

// matchViaRoles searches the identity's assumable-role closure for a role
// whose own policies grant the query, returning a match attributed to the
// assuming identity.
func (e *Engine) matchViaRoles(id *Identity, actionPattern, resourcePattern string) (Match, bool) {
	type hop struct {
		role  *Identity
		chain []string
	}
	visited := map[string]bool{id.ARN: true}
	queue := []hop{}
	for _, r := range e.graph.AssumableRoles(id) {
		if !visited[r.ARN] {
			visited[r.ARN] = true
			queue = append(queue, hop{r, []string{r.Name}})
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if m, ok := e.matchIdentity(cur.role, actionPattern, resourcePattern); ok {
			m.Identity = id.ARN
			m.Kind = id.Kind
			m.Name = id.Name
			m.Via = strings.Join(cur.chain, "/")
			return m, true
		}
		for _, r := range e.graph.AssumableRoles(cur.role) {
			if !visited[r.ARN] {
				visited[r.ARN] = true
				next := append(append([]string{}, cur.chain...), r.Name)
				queue = append(queue, hop{r, next})
			}
		}
	}
	return Match{}, false
}

// matchIdentity decides whether the identity's own effective policies allow
// some concrete pair inside the query patterns. Concrete queries go through
// [Evaluate] and are exact. Patterned queries use the glob-intersection
// test per Allow statement; an Allow is cancelled when a single Deny
// statement covers its entire overlap with the query. Denies that only
// jointly cover an overlap are not detected, erring toward reporting an
// extra allow, never toward hiding a deny.
func (e *Engine) matchIdentity(id *Identity, actionPattern, resourcePattern string) (Match, bool) {
	docs := effectiveDocs(e.graph, id)
	m := Match{Identity: id.ARN, Kind: id.Kind, Name: id.Name}

	if !hasWildcard(actionPattern) && !hasWildcard(resourcePattern) {
		v := Evaluate(docs, actionPattern, resourcePattern)
		if v.Decision != Allow {
			return Match{}, false
		}
		for _, doc := range docs {
			for i := range doc.Statements {
				stmt := &doc.Statements[i]
				if stmt.Effect != EffectAllow || !stmt.Matches(actionPattern, resourcePattern) {
					continue
				}
				m.Conditional = m.Conditional || stmt.HasCondition()
				for _, ap := range stmt.Action {
					if matchPattern(ap, actionPattern) {
						m.Actions = append(m.Actions, ap)
					}
				}
				for _, rp := range stmt.Resource {
					if matchPattern(rp, resourcePattern) {
						m.Resources = append(m.Resources, rp)
					}
				}
			}
		}
		m.Actions = lo.Uniq(m.Actions)
		m.Resources = lo.Uniq(m.Resources)
		return m, true
	}

	type denyPair struct{ action, resource string }
	denies := []denyPair{}
	for _, doc := range docs {
		for i := range doc.Statements {
			stmt := &doc.Statements[i]
			if stmt.Effect != EffectDeny {
				continue
			}
			for _, da := range stmt.Action {
				for _, dr := range stmt.Resource {
					denies = append(denies, denyPair{da, dr})
				}
			}
		}
	}

	for _, doc := range docs {
		for i := range doc.Statements {
			stmt := &doc.Statements[i]
			if stmt.Effect != EffectAllow {
				continue
			}
			for _, ap := range stmt.Action {
				if !patternsIntersect(actionPattern, ap) {
					continue
				}
				for _, rp := range stmt.Resource {
					if !patternsIntersect(resourcePattern, rp) {
						continue
					}
					cancelled := false
					for _, d := range denies {
						if !intersectionSurvives(actionPattern, ap, d.action) &&
							!intersectionSurvives(resourcePattern, rp, d.resource) {
							cancelled = true
							break
						}
					}
					if cancelled {
						continue
					}
					m.Actions = append(m.Actions, ap)
					m.Resources = append(m.Resources, rp)
					m.Conditional = m.Conditional || stmt.HasCondition()
				}
			}
		}
	}
	if len(m.Actions) == 0 {
		return Match{}, false
	}
	m.Actions = lo.Uniq(m.Actions)
	m.Resources = lo.Uniq(m.Resources)
	return m, true
}

func effectiveDocs(g *Graph, id *Identity) []*PolicyDocument {
	return lo.Map(g.EffectivePolicies(id), func(ep EffectivePolicy, _ int) *PolicyDocument {
		return ep.Doc
	})
}

func attributionPath(via string, chain []string) string {
	if len(chain) > 0 {
		return "via-role:" + strings.Join(chain, "/")
	}
	if via != "" {
		return "via-group:" + via
	}
	return "direct"
}
