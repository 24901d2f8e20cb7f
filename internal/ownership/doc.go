// Package ownership implements the ownership-rule engine that routes events
// to owning teams and users.
//
// A project's ownership schema is an ordered list of rules. Each rule pairs
// a matcher (a glob over an event attribute) with an ordered list of owner
// references. Rules are evaluated in declaration order and every matching
// rule contributes its owners, so one event can have several owners.
//
// Owner references are declarative (team slug, user email) and are
// normalized into canonical actors (kind + numeric id) against a directory
// before being used as aggregation keys.
package ownership
