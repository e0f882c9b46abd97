package iamgraph_test

import (
	"context"
	"sync"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/iamgraph/iamgraph"
)

func testEngine(t *testing.T) *iamgraph.Engine {
	t.Helper()
	return iamgraph.NewEngine(buildTestGraph(t))
}

func TestCheckGroupInheritance(t *testing.T) {
	engine := testEngine(t)
	ctx := context.Background()

	// bob holds s3:GetObject on shared/* only through the readers group.
	v, err := engine.Check(ctx, "bob", "s3:GetObject", "arn:aws:s3:::shared/report.csv")
	require.NoError(t, err)
	require.Equal(t, iamgraph.Allow, v.Decision)

	v, err = engine.Check(ctx, "bob", "s3:GetObject", "arn:aws:s3:::private/report.csv")
	require.NoError(t, err)
	require.Equal(t, iamgraph.ImplicitDeny, v.Decision)

	v, err = engine.Check(ctx, "bob", "s3:PutObject", "arn:aws:s3:::shared/report.csv")
	require.NoError(t, err)
	require.Equal(t, iamgraph.ImplicitDeny, v.Decision)
}

func TestCheckDenyOverridesGroupAllow(t *testing.T) {
	engine := testEngine(t)
	ctx := context.Background()

	// admins grants s3:* but alice's inline policy denies DeleteBucket.
	v, err := engine.Check(ctx, "alice", "s3:DeleteBucket", "arn:aws:s3:::prod-logs")
	require.NoError(t, err)
	require.Equal(t, iamgraph.Deny, v.Decision)

	v, err = engine.Check(ctx, "alice", "s3:DeleteObject", "arn:aws:s3:::prod-logs/old.log")
	require.NoError(t, err)
	require.Equal(t, iamgraph.Allow, v.Decision)
}

func TestCheckConditionalAllowWarns(t *testing.T) {
	engine := testEngine(t)

	v, err := engine.Check(context.Background(), "auditor", "cloudwatch:GetMetricData", "arn:aws:cloudwatch:us-east-1:111122223333:metric/x")
	require.NoError(t, err)
	require.Equal(t, iamgraph.Allow, v.Decision)
	require.Len(t, v.Ignored, 1)
}

func TestCheckErrors(t *testing.T) {
	engine := testEngine(t)
	ctx := context.Background()

	_, err := engine.Check(ctx, "nobody", "s3:GetObject", "*")
	unknown := &iamgraph.UnknownIdentityError{}
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "nobody", unknown.ID)

	_, err = engine.Check(ctx, "alice", "s3 GetObject", "*")
	invalid := &iamgraph.InvalidPatternError{}
	require.ErrorAs(t, err, &invalid)

	_, err = engine.Check(ctx, "alice", "", "*")
	require.ErrorAs(t, err, &invalid)
}

func TestWhatCanDoFollowsRolesAndGroups(t *testing.T) {
	engine := testEngine(t)

	grants, err := engine.WhatCanDo(context.Background(), "alice")
	require.NoError(t, err)

	byAction := map[string]iamgraph.Grant{}
	for _, g := range grants {
		byAction[g.Action] = g
	}

	deny := byAction["s3:DeleteBucket"]
	require.Equal(t, iamgraph.EffectDeny, deny.Effect)
	require.Equal(t, "direct", deny.Path)

	full := byAction["s3:*"]
	require.Equal(t, iamgraph.EffectAllow, full.Effect)
	require.Equal(t, "via-group:admins", full.Path)

	// deployer trusts alice, so its lambda policy surfaces via the role.
	invoke := byAction["lambda:InvokeFunction"]
	require.Equal(t, iamgraph.EffectAllow, invoke.Effect)
	require.Equal(t, "via-role:deployer", invoke.Path)
	require.Equal(t, account+":policy/lambda-invoke", invoke.Source)
}

func TestWhatCanDoTrustCycleTerminates(t *testing.T) {
	engine := testEngine(t)

	grants, err := engine.WhatCanDo(context.Background(), "cycle-a")
	require.NoError(t, err)

	paths := map[string]string{}
	for _, g := range grants {
		paths[g.Action] = g.Path
	}
	require.Equal(t, "direct", paths["ec2:StartInstances"])
	require.Equal(t, "via-role:cycle-b", paths["ec2:StopInstances"])
	// The cycle contributes each role once: no duplicate tuples.
	require.Len(t, grants, 2)
}

func TestWhatCanDoConditionalGrant(t *testing.T) {
	engine := testEngine(t)

	grants, err := engine.WhatCanDo(context.Background(), "bob")
	require.NoError(t, err)

	metric, ok := lo.Find(grants, func(g iamgraph.Grant) bool { return g.Action == "cloudwatch:Get*" })
	require.True(t, ok)
	require.True(t, metric.Conditional)
	require.Equal(t, "via-role:auditor", metric.Path)
}

func TestWhatCanDoUnknownIdentity(t *testing.T) {
	engine := testEngine(t)

	_, err := engine.WhatCanDo(context.Background(), "nobody")
	unknown := &iamgraph.UnknownIdentityError{}
	require.ErrorAs(t, err, &unknown)
}

func TestWhoCanDoConcreteAction(t *testing.T) {
	engine := testEngine(t)

	matches, err := engine.WhoCanDo(context.Background(), "s3:GetObject", "arn:aws:s3:::shared/report.csv")
	require.NoError(t, err)

	names := lo.Map(matches, func(m iamgraph.Match, _ int) string { return m.Name })
	require.Contains(t, names, "alice") // s3:* via admins
	require.Contains(t, names, "bob")   // s3:GetObject via readers
	require.Contains(t, names, "admins")
	require.Contains(t, names, "readers")
	require.NotContains(t, names, "carol")
}

func TestWhoCanDoDenyCancelsWildcardAllow(t *testing.T) {
	engine := testEngine(t)

	// alice's s3:* would cover DeleteBucket, but her inline deny removes
	// exactly that overlap. carol holds a literal allow and stays.
	matches, err := engine.WhoCanDo(context.Background(), "s3:DeleteBucket", "*")
	require.NoError(t, err)

	names := lo.Map(matches, func(m iamgraph.Match, _ int) string { return m.Name })
	require.Contains(t, names, "carol")
	require.Contains(t, names, "admins") // the group itself carries no deny
	require.NotContains(t, names, "alice")
}

func TestWhoCanDoWildcardQueryPattern(t *testing.T) {
	engine := testEngine(t)

	// "*:Delete*" overlaps alice's s3:* beyond the denied DeleteBucket
	// (s3:DeleteObject survives), so she is reported despite the deny.
	matches, err := engine.WhoCanDo(context.Background(), "*:Delete*", "*")
	require.NoError(t, err)

	byName := map[string]iamgraph.Match{}
	for _, m := range matches {
		byName[m.Name] = m
	}
	require.Contains(t, byName, "alice")
	require.Equal(t, []string{"s3:*"}, byName["alice"].Actions)
	require.Contains(t, byName, "carol")
	require.Equal(t, []string{"s3:DeleteBucket"}, byName["carol"].Actions)
}

func TestWhoCanDoViaRoleChain(t *testing.T) {
	engine := testEngine(t)

	matches, err := engine.WhoCanDo(context.Background(), "lambda:InvokeFunction", "*")
	require.NoError(t, err)

	byName := map[string]iamgraph.Match{}
	for _, m := range matches {
		byName[m.Name] = m
	}

	require.Contains(t, byName, "deployer")
	require.Empty(t, byName["deployer"].Via)

	// alice only reaches lambda through deployer.
	require.Contains(t, byName, "alice")
	require.Equal(t, "deployer", byName["alice"].Via)

	// cycle-b reaches cycle-a's policies through the trust cycle and the
	// traversal still terminates.
	matches, err = engine.WhoCanDo(context.Background(), "ec2:StartInstances", "*")
	require.NoError(t, err)
	byName = map[string]iamgraph.Match{}
	for _, m := range matches {
		byName[m.Name] = m
	}
	require.Contains(t, byName, "cycle-a")
	require.Contains(t, byName, "cycle-b")
	require.Equal(t, "cycle-a", byName["cycle-b"].Via)
}

func TestWhoCanDoInvalidPattern(t *testing.T) {
	engine := testEngine(t)

	_, err := engine.WhoCanDo(context.Background(), "s3:[bad]", "*")
	invalid := &iamgraph.InvalidPatternError{}
	require.ErrorAs(t, err, &invalid)

	_, err = engine.WhoCanDo(context.Background(), "s3:GetObject", "")
	require.ErrorAs(t, err, &invalid)
}

func TestQueriesAreIdempotent(t *testing.T) {
	engine := testEngine(t)
	ctx := context.Background()

	first, err := engine.WhoCanDo(ctx, "s3:*", "*")
	require.NoError(t, err)
	second, err := engine.WhoCanDo(ctx, "s3:*", "*")
	require.NoError(t, err)
	require.Equal(t, first, second)

	firstGrants, err := engine.WhatCanDo(ctx, "alice")
	require.NoError(t, err)
	secondGrants, err := engine.WhatCanDo(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, firstGrants, secondGrants)
}

func TestConcurrentQueries(t *testing.T) {
	engine := testEngine(t)
	ctx := context.Background()

	want, err := engine.WhoCanDo(ctx, "s3:GetObject", "arn:aws:s3:::shared/report.csv")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := engine.WhoCanDo(ctx, "s3:GetObject", "arn:aws:s3:::shared/report.csv")
			if err != nil {
				errs <- err
				return
			}
			if len(got) != len(want) {
				errs <- &iamgraph.InconsistentSnapshotError{Source: "concurrent", Ref: "who-can-do"}
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.WhatCanDo(ctx, "alice"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestQueryHonorsContextCancellation(t *testing.T) {
	engine := testEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.WhoCanDo(ctx, "s3:*", "*")
	require.ErrorIs(t, err, context.Canceled)

	_, err = engine.WhatCanDo(ctx, "alice")
	require.ErrorIs(t, err, context.Canceled)

	_, err = engine.Check(ctx, "alice", "s3:GetObject", "arn:aws:s3:::shared/x")
	require.ErrorIs(t, err, context.Canceled)
}

func BenchmarkWhoCanDo(b *testing.B) {
	graph, err := iamgraph.Build(testSnapshot())
	require.NoError(b, err)
	engine := iamgraph.NewEngine(graph)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.WhoCanDo(ctx, "s3:Delete*", "*"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCheck(b *testing.B) {
	graph, err := iamgraph.Build(testSnapshot())
	require.NoError(b, err)
	engine := iamgraph.NewEngine(graph)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Check(ctx, "alice", "s3:DeleteObject", "arn:aws:s3:::prod-logs/a.log"); err != nil {
			b.Fatal(err)
		}
	}
}
