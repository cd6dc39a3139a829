// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Maintains one WebSocket session to the discord-user-api event feed
//   - Detects dead connections with a ping/pong heartbeat
//   - Reconnects after unexpected closes with linear backoff
//   - Parses inbound frames and fans them out to registered handlers
//   - Sends subscribe, unsubscribe and ping commands
package connection
