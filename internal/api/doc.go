// Package api hosts the HTTP server and middleware for the image server.
// Routes:
//   - ANY / carries the MCP streamable-HTTP endpoint (get_product_image_url).
//   - GET /healthz and /readyz for container probes.
//   - GET /metrics for Prometheus scraping when metrics are enabled.
package api
