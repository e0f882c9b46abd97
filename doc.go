// The iamgraph-package analyzes cloud-identity permission structures from a
// point-in-time snapshot: who can perform which action on which resource,
// and what a given identity can do, under AWS-style allow/deny semantics.
//
// You start from a normalized [Snapshot] (produced by a fetch collaborator
// or loaded from disk) and build the immutable permission graph:
//
//	snap, _ := iamgraph.LoadSnapshotFile("account.json")
//	graph, err := iamgraph.Build(snap)
//
// Construction validates every record and every edge; a dangling reference
// or malformed entity fails the build, since a partial graph would produce
// silently wrong permission answers.
//
// Queries run against an [Engine]. Group memberships, role-assumption
// chains and explicit-deny precedence are all accounted for:
//
//	engine := iamgraph.NewEngine(graph)
//	// Every identity that may delete buckets, including identities that
//	// only gain the permission by assuming a role:
//	matches, _ := engine.WhoCanDo(ctx, "s3:DeleteBucket", "*")
//	// Everything alice can do, annotated with how each grant is reached:
//	grants, _ := engine.WhatCanDo(ctx, "alice")
//
// Wildcard patterns (`*` and `?`) are honored on both sides: a query for
// "*:Delete*" finds an identity whose policy allows the literal
// "s3:DeleteBucket", because the two patterns share a concrete string.
// Explicit Deny always wins over any number of Allows, and the absence of
// a matching statement is an implicit deny.
//
// Condition blocks are never evaluated. A statement carrying one matches
// unconditionally and the verdict reports it, so results over-approximate:
// extra allows are possible, hidden denies are not.
//
// A built graph is immutable and safe for concurrent queries. It can be
// round-tripped through [Graph.Serialize] and [Deserialize], or cached by
// name across invocations with a [SnapshotStore] implementation (pebble,
// sqlite3 and postgres backends live under store/).
package iamgraph
