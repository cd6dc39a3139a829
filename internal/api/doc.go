// Package api provides the REST client for the discord-user-api server.
//
// Every endpoint answers with the same JSON envelope:
//
//	{"success": true, "data": ..., "error": "", "message": "", "timestamp": "...",
//	 "count": 0, "rate_limit": {"limit": 0, "remaining": 0, "reset": 0, "reset_time": ""}}
//
// Key endpoints: /guilds, /guilds/{id}, /guilds/members, /users, /stats,
// /cache/stats, /websocket/stats, /health
package api
