// Package personalize computes per-user views of a digest from ownership
// data.
//
// The pipeline flattens a digest into its events, resolves each event to
// its owning actors through the project's ownership schema, expands team
// actors into their active members, and merges actor-level event sets into
// per-user event sets. Coverage is additive: a user who is a member of
// several owning teams receives the union of all their event sets. Events
// matching no rule are distributed to every candidate recipient when the
// schema's fallthrough policy is enabled, and dropped otherwise.
//
// Ownership resolution runs once per event batch, not per user; the final
// per-user digest assembly fans out across a bounded worker pool over
// immutable shared state.
package personalize
