// Package api hosts the HTTP server, middleware, and handlers for the
// scraper. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/areas for the area picker.
//   - GET /scrape?area_id= streaming a job's events as Server-Sent Events.
//   - POST /cancel/{job_id} (and POST /scrape/cancel with a JSON body) to
//     request cancellation.
//   - GET /download/{file} serving generated reports.
package api
