// Package progress defines the typed job events a scrape emits, the ordered
// Stream the request layer drains, and the non-blocking Hub that batches the
// same events for observers such as logs and Prometheus collectors.
package progress
