package ownership

import (
	"encoding/json"
	"fmt"

	"github.com/anthrax3/sentry/internal/digest"
)

// OwnerType distinguishes team and user owner references.
type OwnerType string

const (
	// OwnerTypeTeam references a team by slug.
	OwnerTypeTeam OwnerType = "team"
	// OwnerTypeUser references a user by email.
	OwnerTypeUser OwnerType = "user"
)

// Owner is an unresolved ownership reference as declared in a schema rule,
// prior to actor normalization.
type Owner struct {
	Type       OwnerType `json:"type"`
	Identifier string    `json:"identifier"`
}

// Rule pairs a matcher with an ordered list of owners.
type Rule struct {
	Matcher Matcher `json:"matcher"`
	Owners  []Owner `json:"owners"`
}

// Schema is a project's ordered rule list plus the fallthrough policy.
// Immutable once parsed.
type Schema struct {
	Rules       []Rule `json:"rules"`
	Fallthrough bool   `json:"fallthrough"`
}

// ResolveOwners evaluates the schema against an event. Every matching rule
// contributes its owners, preserving rule order then owner order within a
// rule; duplicates across rules are kept (deduplication happens at the
// actor level). The second return reports whether any rule matched, which
// callers need to apply the fallthrough policy to unmatched events.
func (s *Schema) ResolveOwners(e digest.Event) ([]Owner, bool) {
	var owners []Owner
	matched := false
	for _, rule := range s.Rules {
		if rule.Matcher.Test(e) {
			matched = true
			owners = append(owners, rule.Owners...)
		}
	}
	return owners, matched
}

// ParseSchema decodes a stored ownership schema. The storage collaborator
// owns the serialization format; this is the parse-on-read counterpart.
func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing ownership schema: %w", err)
	}
	return &s, nil
}

// EncodeSchema serializes a schema for storage.
func EncodeSchema(s *Schema) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding ownership schema: %w", err)
	}
	return data, nil
}
