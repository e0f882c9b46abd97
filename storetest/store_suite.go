// Package storetest provides a conformance suite shared by every
// [iamgraph.SnapshotStore] implementation.
package storetest

import (
	"cmp"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slices"

	"github.com/iamgraph/iamgraph"
)

// Fixture returns a small but representative snapshot: a user inheriting
// an allow through a group, an inline deny on the user, and an assumable
// role.
func Fixture() *iamgraph.Snapshot {
	return &iamgraph.Snapshot{
		Policies: []iamgraph.PolicyRecord{
			{
				ARN:  "arn:aws:iam::123456789012:policy/s3-full",
				Name: "s3-full",
				Document: iamgraph.DocumentRecord{
					Version: "2012-10-17",
					Statement: []iamgraph.StatementRecord{
						{Effect: "Allow", Action: iamgraph.StringList{"s3:*"}, Resource: iamgraph.StringList{"*"}},
					},
				},
			},
			{
				ARN:  "arn:aws:iam::123456789012:policy/lambda-invoke",
				Name: "lambda-invoke",
				Document: iamgraph.DocumentRecord{
					Version: "2012-10-17",
					Statement: []iamgraph.StatementRecord{
						{Effect: "Allow", Action: iamgraph.StringList{"lambda:InvokeFunction"}, Resource: iamgraph.StringList{"*"}},
					},
				},
			},
		},
		Groups: []iamgraph.GroupRecord{
			{
				ARN:              "arn:aws:iam::123456789012:group/storage-admins",
				Name:             "storage-admins",
				AttachedPolicies: []string{"arn:aws:iam::123456789012:policy/s3-full"},
			},
		},
		Users: []iamgraph.UserRecord{
			{
				ARN:    "arn:aws:iam::123456789012:user/alice",
				Name:   "alice",
				Groups: []string{"storage-admins"},
				InlinePolicies: []iamgraph.InlinePolicy{
					{
						Name: "no-bucket-delete",
						Document: iamgraph.DocumentRecord{
							Statement: []iamgraph.StatementRecord{
								{Effect: "Deny", Action: iamgraph.StringList{"s3:DeleteBucket"}, Resource: iamgraph.StringList{"*"}},
							},
						},
					},
				},
			},
		},
		Roles: []iamgraph.RoleRecord{
			{
				ARN:              "arn:aws:iam::123456789012:role/lambda-runner",
				Name:             "lambda-runner",
				AttachedPolicies: []string{"arn:aws:iam::123456789012:policy/lambda-invoke"},
				TrustPolicy: &iamgraph.DocumentRecord{
					Statement: []iamgraph.StatementRecord{
						{
							Effect:    "Allow",
							Action:    iamgraph.StringList{"sts:AssumeRole"},
							Principal: iamgraph.PrincipalRecord{"AWS": {"arn:aws:iam::123456789012:user/alice"}},
						},
					},
				},
			},
		},
	}
}

type TestConfig struct {
	Store iamgraph.SnapshotStore
}

func RunTestAll(t *testing.T, configs map[string]TestConfig) {
	for name, config := range configs {
		t.Run(name, func(t *testing.T) {
			RunTest(t, config.Store)
		})
	}
}

func RunTest(t *testing.T, store iamgraph.SnapshotStore) {
	ctx := context.Background()

	t.Run("roundtrip", func(t *testing.T) {
		id, err := store.Put(ctx, "prod", Fixture())
		require.NoError(t, err)
		require.False(t, id.IsNil())

		snap, err := store.Get(ctx, "prod")
		require.NoError(t, err)

		// Fidelity is judged by query results, not byte equality.
		graph, err := iamgraph.Build(snap)
		require.NoError(t, err)
		engine := iamgraph.NewEngine(graph)
		v, err := engine.Check(ctx, "alice", "s3:GetObject", "arn:aws:s3:::data/report.csv")
		require.NoError(t, err)
		require.Equal(t, iamgraph.Allow, v.Decision)
		v, err = engine.Check(ctx, "alice", "s3:DeleteBucket", "arn:aws:s3:::data")
		require.NoError(t, err)
		require.Equal(t, iamgraph.Deny, v.Decision)
	})

	t.Run("replace", func(t *testing.T) {
		first, err := store.Put(ctx, "staging", Fixture())
		require.NoError(t, err)
		second, err := store.Put(ctx, "staging", Fixture())
		require.NoError(t, err)
		require.NotEqual(t, first, second)

		infos, err := store.List(ctx)
		require.NoError(t, err)
		names := make([]string, 0, len(infos))
		for _, info := range infos {
			names = append(names, info.Name)
		}
		slices.SortFunc(names, func(a, b string) int { return cmp.Compare(a, b) })
		require.Contains(t, names, "prod")
		require.Contains(t, names, "staging")
		require.Equal(t, 1, countOf(names, "staging"))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "staging"))
		_, err := store.Get(ctx, "staging")
		require.ErrorIs(t, err, iamgraph.ErrNotFound)
		require.ErrorIs(t, store.Delete(ctx, "staging"), iamgraph.ErrNotFound)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := store.Get(ctx, "nope")
		require.ErrorIs(t, err, iamgraph.ErrNotFound)
	})
}

func countOf(names []string, want string) int {
	n := 0
	for _, name := range names {
		if name == want {
			n++
		}
	}
	return n
}

func RunBenchmarkAll(b *testing.B, stores map[string]iamgraph.SnapshotStore) {
	for name, store := range stores {
		b.Run(name, func(b *testing.B) {
			RunBenchmark(b, store)
		})
	}
}

func RunBenchmark(b *testing.B, store iamgraph.SnapshotStore) {
	ctx := context.Background()
	if _, err := store.Put(ctx, "bench", Fixture()); err != nil {
		b.Fatalf("Expected store.Put not to fail: %v", err)
	}
	b.Run("get", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if _, err := store.Get(ctx, "bench"); err != nil {
				b.Fatalf("Expected store.Get not to fail: %v", err)
			}
		}
	})
}
