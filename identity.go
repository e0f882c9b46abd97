package iamgraph

// IdentityKind discriminates the identity variants held by a [Graph].
type IdentityKind string

const (
	KindUser  IdentityKind = "user"
	KindGroup IdentityKind = "group"
	KindRole  IdentityKind = "role"
)

// Effect is the outcome a [Statement] imposes when it matches.
type Effect string

const (
	EffectAllow Effect = "Allow"
	EffectDeny  Effect = "Deny"
)

// Statement is a single allow/deny rule inside a [PolicyDocument].
// Action and Resource hold patterns that may contain `*` and `?` wildcards.
// Condition is carried opaquely and never evaluated; Principal is only
// populated on trust policies.
type Statement struct {
	Sid       string                         `json:"sid,omitempty"`
	Effect    Effect                         `json:"effect"`
	Action    []string                       `json:"action,omitempty"`
	Resource  []string                       `json:"resource,omitempty"`
	Condition map[string]map[string][]string `json:"condition,omitempty"`
	Principal map[string][]string            `json:"principal,omitempty"`
}

// HasCondition reports whether the statement carries an (unevaluated)
// condition block.
func (s *Statement) HasCondition() bool {
	return len(s.Condition) > 0
}

// PolicyDocument is an ordered collection of statements. Managed policies
// are identified by their ARN; inline policies by owner-ARN and name.
type PolicyDocument struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Statements []Statement `json:"statements"`
}

// Identity is a user, group or role node in the permission graph.
// Identities are created exclusively by [Build] and are immutable afterwards.
type Identity struct {
	ARN  string       `json:"arn"`
	Name string       `json:"name"`
	Kind IdentityKind `json:"kind"`

	attached []*PolicyDocument
	inline   []*PolicyDocument
	groups   []*Identity
	trust    *PolicyDocument
}

// Policies returns the identity's directly attached policy documents,
// managed policies first, then inline, each in snapshot insertion order.
func (id *Identity) Policies() []*PolicyDocument {
	docs := make([]*PolicyDocument, 0, len(id.attached)+len(id.inline))
	docs = append(docs, id.attached...)
	docs = append(docs, id.inline...)
	return docs
}

// Groups returns the groups a user is a member of, in snapshot insertion
// order. Empty for groups and roles.
func (id *Identity) Groups() []*Identity {
	return append([]*Identity(nil), id.groups...)
}

// TrustPolicy returns a role's trust policy, or nil for users and groups.
func (id *Identity) TrustPolicy() *PolicyDocument {
	return id.trust
}
