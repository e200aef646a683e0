// Package progress carries the structured cycle events emitted by the site
// runner and the scheduler. A Hub batches events on a background goroutine
// and fans them out to sinks (structured logs, Prometheus) so capture code
// never logs or records metrics inline.
package progress
