// Package poller implements the Guild Snapshot Poller component.
//
// The Snapshot Poller:
//   - Fetches guild + member snapshots over the REST API on an interval
//   - Polls a configured guild list, or every guild the server lists
//   - Re-polls a guild early when the feed reports it was refreshed
//   - Bounds concurrent requests
package poller
