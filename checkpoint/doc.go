// Package checkpoint persists per-session question/answer history so a
// conversation can resume after a restart. It ships an in-memory store
// for single-process deployments and a Redis store for distributed ones,
// both bounded to a configurable number of recent turns per session.
package checkpoint
