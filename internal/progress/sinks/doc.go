// Package sinks implements observers of the job event stream: structured
// logging and Prometheus collectors. Each sink satisfies progress.Sink.
package sinks
