package iamgraph

import (
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"maps"
	"slices"
)

// Graph owns every identity and policy node built from a snapshot together
// with the membership, attachment and trust edges between them. A Graph is
// built once and is immutable afterwards, so it is safe to share across
// concurrent queries without locking.
type Graph struct {
	identities map[string]*Identity
	byName     map[string]*Identity
	order      []*Identity
	policies   map[string]*PolicyDocument

	// The normalized snapshot is retained verbatim so that Serialize
	// round-trips with full fidelity.
	snapshot *Snapshot
}

// Build constructs a fully linked Graph from a normalized snapshot.
// Records missing required fields fail with [MalformedEntityError];
// dangling references between records fail with
// [InconsistentSnapshotError]. Both are fatal: a partial graph would yield
// silently wrong permission answers, so none is ever returned.
func Build(snap *Snapshot) (*Graph, error) {
	g := &Graph{
		identities: map[string]*Identity{},
		byName:     map[string]*Identity{},
		policies:   map[string]*PolicyDocument{},
		snapshot:   snap,
	}

	for _, p := range snap.Policies {
		if p.ARN == "" || p.Name == "" {
			return nil, &MalformedEntityError{ID: p.ARN + p.Name, Reason: "policy requires arn and name"}
		}
		if _, ok := g.policies[p.ARN]; ok {
			return nil, &MalformedEntityError{ID: p.ARN, Reason: "duplicate identifier"}
		}
		doc, err := buildDocument(p.ARN, p.Name, p.Document)
		if err != nil {
			return nil, err
		}
		g.policies[p.ARN] = doc
	}

	// Groups before users: memberships reference them.
	for _, r := range snap.Groups {
		if _, err := g.addIdentity(r.ARN, r.Name, KindGroup, r.AttachedPolicies, r.InlinePolicies); err != nil {
			return nil, err
		}
	}
	for _, r := range snap.Users {
		id, err := g.addIdentity(r.ARN, r.Name, KindUser, r.AttachedPolicies, r.InlinePolicies)
		if err != nil {
			return nil, err
		}
		for _, ref := range r.Groups {
			grp := g.lookup(ref)
			if grp == nil || grp.Kind != KindGroup {
				return nil, &InconsistentSnapshotError{Source: r.ARN, Ref: ref}
			}
			id.groups = append(id.groups, grp)
		}
	}
	for _, r := range snap.Roles {
		id, err := g.addIdentity(r.ARN, r.Name, KindRole, r.AttachedPolicies, r.InlinePolicies)
		if err != nil {
			return nil, err
		}
		if r.TrustPolicy != nil {
			doc, err := buildDocument(r.ARN+"/trust", r.Name+"-trust", *r.TrustPolicy)
			if err != nil {
				return nil, err
			}
			id.trust = doc
		}
	}

	return g, nil
}

func (g *Graph) addIdentity(arn, name string, kind IdentityKind, attached []string, inline []InlinePolicy) (*Identity, error) {
	if arn == "" || name == "" {
		return nil, &MalformedEntityError{ID: arn + name, Reason: string(kind) + " requires arn and name"}
	}
	if _, ok := g.identities[arn]; ok {
		return nil, &MalformedEntityError{ID: arn, Reason: "duplicate identifier"}
	}
	id := &Identity{ARN: arn, Name: name, Kind: kind}
	for _, ref := range attached {
		doc, ok := g.policies[ref]
		if !ok {
			return nil, &InconsistentSnapshotError{Source: arn, Ref: ref}
		}
		id.attached = append(id.attached, doc)
	}
	for _, p := range inline {
		doc, err := buildDocument(fmt.Sprintf("%s/inline/%s", arn, p.Name), p.Name, p.Document)
		if err != nil {
			return nil, err
		}
		id.inline = append(id.inline, doc)
	}
	g.identities[arn] = id
	g.byName[name] = id
	g.order = append(g.order, id)
	return id, nil
}

func buildDocument(id, name string, rec DocumentRecord) (*PolicyDocument, error) {
	doc := &PolicyDocument{ID: id, Name: name}
	for i, s := range rec.Statement {
		effect := Effect(s.Effect)
		if effect != EffectAllow && effect != EffectDeny {
			return nil, &MalformedEntityError{
				ID:     id,
				Reason: fmt.Sprintf("statement %d: effect must be Allow or Deny, got %q", i, s.Effect),
			}
		}
		stmt := Statement{
			Sid:      s.Sid,
			Effect:   effect,
			Action:   []string(s.Action),
			Resource: []string(s.Resource),
		}
		if len(s.Condition) > 0 {
			stmt.Condition = map[string]map[string][]string{}
			for op, keys := range s.Condition {
				stmt.Condition[op] = map[string][]string{}
				for key, vals := range keys {
					stmt.Condition[op][key] = []string(vals)
				}
			}
		}
		if len(s.Principal) > 0 {
			stmt.Principal = map[string][]string{}
			for key, vals := range s.Principal {
				stmt.Principal[key] = []string(vals)
			}
		}
		doc.Statements = append(doc.Statements, stmt)
	}
	return doc, nil
}

// lookup resolves an identity by ARN first, then by display name.
func (g *Graph) lookup(ref string) *Identity {
	if id, ok := g.identities[ref]; ok {
		return id
	}
	return g.byName[ref]
}

// Identity resolves an identity by ARN or display name.
func (g *Graph) Identity(ref string) (*Identity, bool) {
	id := g.lookup(ref)
	return id, id != nil
}

// Policy resolves a managed policy document by ARN.
func (g *Graph) Policy(arn string) (*PolicyDocument, bool) {
	doc, ok := g.policies[arn]
	return doc, ok
}

// Identities yields every identity in snapshot insertion order. Each call
// returns a fresh sequence.
func (g *Graph) Identities() iter.Seq[*Identity] {
	return func(yield func(*Identity) bool) {
		for _, id := range g.order {
			if !yield(id) {
				return
			}
		}
	}
}

// EffectivePolicy is a policy document reachable from an identity together
// with how it was reached: Via is empty for direct attachments and carries
// the group name for group-inherited documents.
type EffectivePolicy struct {
	Doc *PolicyDocument
	Via string
}

// EffectivePolicies returns every policy document reachable from the
// identity via direct attachment or one level of group membership. Direct
// documents come first, then inherited ones, each in snapshot insertion
// order. The ordering affects display only, never evaluation outcome.
func (g *Graph) EffectivePolicies(id *Identity) []EffectivePolicy {
	out := []EffectivePolicy{}
	for _, doc := range id.Policies() {
		out = append(out, EffectivePolicy{Doc: doc})
	}
	for _, grp := range id.groups {
		for _, doc := range grp.Policies() {
			out = append(out, EffectivePolicy{Doc: doc, Via: grp.Name})
		}
	}
	return out
}

// AssumableRoles returns the roles whose trust policy allows the given
// identity as a principal, in snapshot insertion order. Principal patterns
// may contain wildcards and are matched against the identity's ARN; a bare
// "*" principal trusts everything.
func (g *Graph) AssumableRoles(id *Identity) []*Identity {
	roles := []*Identity{}
	for _, candidate := range g.order {
		if candidate.Kind != KindRole || candidate == id || candidate.trust == nil {
			continue
		}
		if trustAllows(candidate.trust, id.ARN) {
			roles = append(roles, candidate)
		}
	}
	return roles
}

func trustAllows(trust *PolicyDocument, arn string) bool {
	for i := range trust.Statements {
		stmt := &trust.Statements[i]
		if stmt.Effect != EffectAllow {
			continue
		}
		for _, patterns := range stmt.Principal {
			if matchAny(patterns, arn) {
				return true
			}
		}
	}
	return false
}

// Edge kinds reported by [Graph.Export].
const (
	EdgeMemberOf = "member-of"
	EdgeAttached = "attached"
	EdgeTrusts   = "trusts"
)

type ExportNode struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

type ExportEdge struct {
	Kind   string `json:"kind"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Export flattens the graph into node and edge records for an external
// rendering collaborator. Trust edges are directed principal-pattern to
// role, distinct from the permission-granting attachment edges.
func (g *Graph) Export() ([]ExportNode, []ExportEdge) {
	nodes := []ExportNode{}
	edges := []ExportEdge{}
	seenPolicy := map[string]bool{}
	for _, id := range g.order {
		nodes = append(nodes, ExportNode{ID: id.ARN, Kind: string(id.Kind)})
		for _, grp := range id.groups {
			edges = append(edges, ExportEdge{Kind: EdgeMemberOf, Source: id.ARN, Target: grp.ARN})
		}
		for _, doc := range id.Policies() {
			if !seenPolicy[doc.ID] {
				seenPolicy[doc.ID] = true
				nodes = append(nodes, ExportNode{ID: doc.ID, Kind: "policy"})
			}
			edges = append(edges, ExportEdge{Kind: EdgeAttached, Source: id.ARN, Target: doc.ID})
		}
		if id.trust != nil {
			for i := range id.trust.Statements {
				stmt := &id.trust.Statements[i]
				if stmt.Effect != EffectAllow {
					continue
				}
				for _, key := range slices.Sorted(maps.Keys(stmt.Principal)) {
					for _, p := range stmt.Principal[key] {
						edges = append(edges, ExportEdge{Kind: EdgeTrusts, Source: p, Target: id.ARN})
					}
				}
			}
		}
	}
	return nodes, edges
}

// Serialize writes the graph to w. The byte format is an implementation
// detail; the only contract is that Deserialize restores a graph with
// identical node and edge sets and identical query results.
func (g *Graph) Serialize(w io.Writer) error {
	if err := json.NewEncoder(w).Encode(g.snapshot); err != nil {
		return fmt.Errorf("serializing graph: %w", err)
	}
	return nil
}

// Deserialize restores a graph previously written by [Graph.Serialize].
func Deserialize(r io.Reader) (*Graph, error) {
	snap := &Snapshot{}
	if err := json.NewDecoder(r).Decode(snap); err != nil {
		return nil, fmt.Errorf("deserializing graph: %w", err)
	}
	return Build(snap)
}
