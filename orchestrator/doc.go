// Package orchestrator drives turn-based conversations between named actors
// toward a shared objective. It owns speaker selection (cyclic round-robin or
// model-routed), the per-turn prompt window, session persistence, and ordered
// progress emission. Sessions survive process restarts: a persisted session
// can be resumed with a fresh turn budget and numbering continues where it
// left off.
package orchestrator
