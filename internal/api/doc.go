// Package api hosts the HTTP server, middleware, and handlers. Routes:
//   - GET /api/torrent?name= for repack lookups, answered as [[repacker, link], ...].
//   - GET /api/games/... proxying the game metadata API.
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
package api
