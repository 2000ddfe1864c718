// Package upsert compiles JSON documents into transactional upserts.
//
// Each sub-object of a document that represents a graph node receives an identity: a
// query variable bound by looking up its deduplication keys, or a fresh blank node
// when it has none. Deduplication keys are written only through mutations guarded by
// `@if(eq(len(v), 0))`, so that a key is set on a node only when no existing node
// carried it. All other fields are merged into a single residual set mutation per chunk.
package upsert
