// Package progress provides the event primitives and the non-blocking hub
// that turn executor progress callbacks into batched events. The hub runs a
// background goroutine and fans batches out to pluggable sinks such as a
// terminal bar, structured logs or Prometheus metrics.
package progress
