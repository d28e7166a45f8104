// Package scraper implements the area scraping job engine: paced fetching,
// pagination discovery, listing fan-out, record extraction and
// classification, and the coordinator that drives a job end to end while
// streaming progress events and honouring cooperative cancellation.
package scraper
