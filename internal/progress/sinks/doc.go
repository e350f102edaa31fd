// Package sinks implements concrete progress consumers: a live terminal bar,
// structured logging and Prometheus run metrics. Each sink satisfies the
// progress.Sink interface.
package sinks
