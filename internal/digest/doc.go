// Package digest provides the digest data model for batched error notifications.
//
// A digest is an ordered collection of records built once per notification
// cycle. Each record pairs an event occurrence with the alert rules that
// fired for it and the timestamp of its group's most recent occurrence.
// Records are sorted most-recent-first and grouped by their originating
// group so renderers can present one section per group.
//
// Build a digest from a flat record list:
//
//	records := digest.SortRecords(records)
//	d := digest.Build(projectID, records)
package digest
