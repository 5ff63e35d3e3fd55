// Package devserver implements the spanav preview server.
//
// The preview server serves a static site directory and drives every
// open browser tab with its own spa.Router over a WebSocket bridge:
//
//   - Site files under the configured root. HTML pages get the bridge
//     client script injected; partial-content requests (sent by the
//     router's fetcher) receive the page payload as JSON instead.
//   - /_spanav/ws accepts bridge sessions and /_spanav/client.js serves
//     the browser side of the bridge.
//   - /api/v1 is a small control API (health, sessions, navigate,
//     refresh, cache invalidation) with an OpenAPI description at
//     /api/v1/openapi.json.
//   - /metrics exposes Prometheus metrics when enabled.
//
// When watching is enabled, changed site files invalidate the matching
// pages in every live router's cache.
package devserver
