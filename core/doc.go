// Package core defines the shared data model and collaborator contracts used
// across Roundtable: recorded interactions, orchestrated sessions and their
// turn history, scored retrieval results, and the interfaces implemented by
// inference providers, embedding providers, actors and progress sinks.
//
// Concrete behaviour lives in the implementation packages (memory, session,
// orchestrator, toolcall, agent); core stays free of provider and storage
// dependencies so every other package can depend on it without cycles.
package core
