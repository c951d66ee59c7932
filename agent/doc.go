// Package agent provides the default core.Actor implementation: an
// inference-backed participant that enriches its prompt with semantically
// retrieved memory, exposes authorized workspace actions, and records its
// own contributions. A Registry maps actor names to implementations for
// orchestrated sessions.
package agent
