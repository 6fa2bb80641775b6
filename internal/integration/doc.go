// Package integration holds cross-package tests for rlm: the engine and
// orchestrator driving a real session store, shared task lists contended
// by several coordinators, and the context tiers fed by spawned agents.
//
// Build tag: integration
// Run with: go test -tags integration ./internal/integration/...
package integration
