package iamgraph_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iamgraph/iamgraph"
)

func allowDoc(id string, actions, resources []string) *iamgraph.PolicyDocument {
	return &iamgraph.PolicyDocument{
		ID:   id,
		Name: id,
		Statements: []iamgraph.Statement{
			{Effect: iamgraph.EffectAllow, Action: actions, Resource: resources},
		},
	}
}

func denyDoc(id string, actions, resources []string) *iamgraph.PolicyDocument {
	return &iamgraph.PolicyDocument{
		ID:   id,
		Name: id,
		Statements: []iamgraph.Statement{
			{Effect: iamgraph.EffectDeny, Action: actions, Resource: resources},
		},
	}
}

func TestEvaluateDenyWinsRegardlessOfOrder(t *testing.T) {
	allow := allowDoc("allow-all-s3", []string{"s3:*"}, []string{"*"})
	deny := denyDoc("deny-delete", []string{"s3:DeleteBucket"}, []string{"*"})

	v := iamgraph.Evaluate([]*iamgraph.PolicyDocument{allow, deny}, "s3:DeleteBucket", "arn:aws:s3:::data")
	require.Equal(t, iamgraph.Deny, v.Decision)

	v = iamgraph.Evaluate([]*iamgraph.PolicyDocument{deny, allow}, "s3:DeleteBucket", "arn:aws:s3:::data")
	require.Equal(t, iamgraph.Deny, v.Decision)

	// The deny is scoped; everything else under s3:* stays allowed.
	v = iamgraph.Evaluate([]*iamgraph.PolicyDocument{allow, deny}, "s3:DeleteObject", "arn:aws:s3:::data/key")
	require.Equal(t, iamgraph.Allow, v.Decision)
}

func TestEvaluateImplicitDeny(t *testing.T) {
	allow := allowDoc("allow-s3-read", []string{"s3:Get*"}, []string{"arn:aws:s3:::data/*"})

	v := iamgraph.Evaluate([]*iamgraph.PolicyDocument{allow}, "ec2:RunInstances", "*")
	require.Equal(t, iamgraph.ImplicitDeny, v.Decision)

	// Action matches but resource does not.
	v = iamgraph.Evaluate([]*iamgraph.PolicyDocument{allow}, "s3:GetObject", "arn:aws:s3:::other/key")
	require.Equal(t, iamgraph.ImplicitDeny, v.Decision)

	v = iamgraph.Evaluate(nil, "s3:GetObject", "*")
	require.Equal(t, iamgraph.ImplicitDeny, v.Decision)
}

func TestEvaluateConditionIgnored(t *testing.T) {
	doc := &iamgraph.PolicyDocument{
		ID:   "conditional-allow",
		Name: "conditional-allow",
		Statements: []iamgraph.Statement{
			{
				Sid:      "OnlyFromOffice",
				Effect:   iamgraph.EffectAllow,
				Action:   []string{"s3:GetObject"},
				Resource: []string{"*"},
				Condition: map[string]map[string][]string{
					"IpAddress": {"aws:SourceIp": {"203.0.113.0/24"}},
				},
			},
		},
	}

	v := iamgraph.Evaluate([]*iamgraph.PolicyDocument{doc}, "s3:GetObject", "arn:aws:s3:::data/key")
	require.Equal(t, iamgraph.Allow, v.Decision)
	require.Len(t, v.Ignored, 1)
	require.Equal(t, "conditional-allow", v.Ignored[0].Policy)
	require.Equal(t, "OnlyFromOffice", v.Ignored[0].Sid)

	// A non-matching conditional statement is not reported.
	v = iamgraph.Evaluate([]*iamgraph.PolicyDocument{doc}, "s3:PutObject", "*")
	require.Equal(t, iamgraph.ImplicitDeny, v.Decision)
	require.Empty(t, v.Ignored)
}

func TestStatementMatches(t *testing.T) {
	stmt := &iamgraph.Statement{
		Effect:   iamgraph.EffectAllow,
		Action:   []string{"s3:Get*", "s3:List*"},
		Resource: []string{"arn:aws:s3:::data", "arn:aws:s3:::data/*"},
	}
	require.True(t, stmt.Matches("s3:GetObject", "arn:aws:s3:::data/key"))
	require.True(t, stmt.Matches("s3:ListBucket", "arn:aws:s3:::data"))
	require.False(t, stmt.Matches("s3:PutObject", "arn:aws:s3:::data/key"))
	require.False(t, stmt.Matches("s3:GetObject", "arn:aws:s3:::elsewhere"))
}
