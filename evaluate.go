package iamgraph

// Decision is the outcome of evaluating policy documents against a
// concrete (action, resource) pair.
type Decision int

const (
	// ImplicitDeny is the default: no statement matched at all.
	ImplicitDeny Decision = iota
	// Allow means at least one Allow statement matched and no Deny did.
	Allow
	// Deny means an explicit Deny statement matched. It always wins.
	Deny
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	default:
		return "implicit-deny"
	}
}

// ConditionIgnored flags a statement whose Condition block was present and
// skipped while matching. The result over-approximates: it may report an
// allow that a real request context would reject, but it never hides a deny.
type ConditionIgnored struct {
	Policy    string `json:"policy"`
	Statement int    `json:"statement"`
	Sid       string `json:"sid,omitempty"`
}

// Verdict is the result of [Evaluate], carrying the decision and any
// condition-ignored warnings accumulated during the scan.
type Verdict struct {
	Decision Decision           `json:"decision"`
	Ignored  []ConditionIgnored `json:"ignored,omitempty"`
}

// Matches reports whether the statement applies to the concrete
// (action, resource) pair: the action must match at least one Action
// pattern and the resource at least one Resource pattern.
func (s *Statement) Matches(action, resource string) bool {
	return matchAny(s.Action, action) && matchAny(s.Resource, resource)
}

// Evaluate scans every statement across all supplied documents and decides
// the effect on the concrete (action, resource) pair. The scan always
// completes before a decision is made: a Deny in the last document must win
// over an Allow in the first, regardless of ordering. Statements carrying a
// Condition block are treated as unconditionally matching and reported in
// the verdict's Ignored list.
func Evaluate(docs []*PolicyDocument, action, resource string) Verdict {
	v := Verdict{}
	allowed := false
	denied := false
	for _, doc := range docs {
		for i := range doc.Statements {
			stmt := &doc.Statements[i]
			if !stmt.Matches(action, resource) {
				continue
			}
			if stmt.HasCondition() {
				v.Ignored = append(v.Ignored, ConditionIgnored{
					Policy:    doc.ID,
					Statement: i,
					Sid:       stmt.Sid,
				})
			}
			switch stmt.Effect {
			case EffectDeny:
				denied = true
			case EffectAllow:
				allowed = true
			}
		}
	}
	switch {
	case denied:
		v.Decision = Deny
	case allowed:
		v.Decision = Allow
	default:
		v.Decision = ImplicitDeny
	}
	return v
}
