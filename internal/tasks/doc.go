// Package tasks implements the background task queue on top of Redis. A
// Broker pushes JSON task envelopes onto a list and reads results back from
// the result backend; a Worker pops envelopes, dispatches them to registered
// handlers and records the outcome with an expiry.
package tasks
