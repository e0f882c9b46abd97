package iamgraph

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Snapshot is the normalized point-in-time extract of identity and policy
// data produced by a fetch collaborator. It is the only input to [Build].
type Snapshot struct {
	Users    []UserRecord   `json:"users"`
	Groups   []GroupRecord  `json:"groups"`
	Roles    []RoleRecord   `json:"roles"`
	Policies []PolicyRecord `json:"policies"`
}

type UserRecord struct {
	ARN              string         `json:"arn"`
	Name             string         `json:"name"`
	Groups           []string       `json:"groups,omitempty"`
	AttachedPolicies []string       `json:"attached_policies,omitempty"`
	InlinePolicies   []InlinePolicy `json:"inline_policies,omitempty"`
}

type GroupRecord struct {
	ARN              string         `json:"arn"`
	Name             string         `json:"name"`
	AttachedPolicies []string       `json:"attached_policies,omitempty"`
	InlinePolicies   []InlinePolicy `json:"inline_policies,omitempty"`
}

type RoleRecord struct {
	ARN              string          `json:"arn"`
	Name             string          `json:"name"`
	AttachedPolicies []string        `json:"attached_policies,omitempty"`
	InlinePolicies   []InlinePolicy  `json:"inline_policies,omitempty"`
	TrustPolicy      *DocumentRecord `json:"trust_policy,omitempty"`
}

type PolicyRecord struct {
	ARN      string         `json:"arn"`
	Name     string         `json:"name"`
	Document DocumentRecord `json:"document"`
}

type InlinePolicy struct {
	Name     string         `json:"name"`
	Document DocumentRecord `json:"document"`
}

// DocumentRecord mirrors the raw IAM policy document shape, including the
// string-or-list encodings AWS permits for Action, Resource and Principal.
type DocumentRecord struct {
	Version   string            `json:"Version,omitempty"`
	Statement []StatementRecord `json:"Statement"`
}

type StatementRecord struct {
	Sid       string                           `json:"Sid,omitempty"`
	Effect    string                           `json:"Effect"`
	Action    StringList                       `json:"Action,omitempty"`
	Resource  StringList                       `json:"Resource,omitempty"`
	Condition map[string]map[string]StringList `json:"Condition,omitempty"`
	Principal PrincipalRecord                  `json:"Principal,omitempty"`
}

// StringList decodes either a single JSON string or a list of strings.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = StringList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected string or list of strings: %w", err)
	}
	*l = StringList(many)
	return nil
}

func (l StringList) MarshalJSON() ([]byte, error) {
	if len(l) == 1 {
		return json.Marshal(l[0])
	}
	return json.Marshal([]string(l))
}

// PrincipalRecord decodes either the bare "*" form or the keyed form
// {"AWS": [...], "Service": [...]}. The bare form becomes {"AWS": ["*"]}.
type PrincipalRecord map[string]StringList

func (p *PrincipalRecord) UnmarshalJSON(data []byte) error {
	var star string
	if err := json.Unmarshal(data, &star); err == nil {
		if star != "*" {
			return fmt.Errorf("principal string must be %q, got %q", "*", star)
		}
		*p = PrincipalRecord{"AWS": {"*"}}
		return nil
	}
	var keyed map[string]StringList
	if err := json.Unmarshal(data, &keyed); err != nil {
		return fmt.Errorf("expected %q or keyed principal map: %w", "*", err)
	}
	*p = PrincipalRecord(keyed)
	return nil
}

// DecodeSnapshot reads a JSON-encoded snapshot. Schema violations surface
// here; referential integrity is checked later by [Build].
func DecodeSnapshot(r io.Reader) (*Snapshot, error) {
	snap := &Snapshot{}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return snap, nil
}

// LoadSnapshotFile reads a snapshot from a JSON file on disk.
func LoadSnapshotFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeSnapshot(f)
}
