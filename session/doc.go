// Package session persists orchestrated conversation sessions. The gorm
// backed SQLStore is the durable implementation (row-level upsert keyed by
// session id, safe for concurrent sessions without cross-session locking);
// InMemoryStore is a volatile drop-in for tests and ephemeral demos. Both
// hand out deep copies so callers can never mutate stored state in place.
package session
