// Package sinks implements progress consumers: a zap log sink and a
// Prometheus sink. Both satisfy progress.Sink.
package sinks
