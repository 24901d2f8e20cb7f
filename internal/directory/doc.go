// Package directory provides the organizational data collaborator backing
// the personalization pipeline: projects, teams, users, team memberships,
// and per-project ownership schemas.
//
// The pipeline only depends on the narrow read interfaces it declares
// (ownership.Resolver, personalize.Directory); Store is the SQLite-backed
// implementation used by the daemon. Ownership schemas are stored as JSON
// and parsed on read.
package directory
