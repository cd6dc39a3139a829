// Package journal persists feed events to PostgreSQL.
//
// The Writer subscribes to a connection.Manager's message notifications,
// queues events without blocking the socket reader, and inserts them in
// batches into the feed_events table:
//
//	id          uuid primary key   (derived from the event content)
//	socket_id   text
//	event_type  text
//	guild_id    text
//	user_id     text
//	server_ts   timestamptz null   (event timestamp, when parseable)
//	received_at timestamptz
//	data        jsonb null
//
// Re-delivered events hash to the same id and are counted as conflicts.
//
// SnapshotStore writes guild snapshots from the poller into
// guild_snapshots, keyed by (guild_id, fetched_at).
package journal
