// Package toolcall extracts structured action requests embedded in free-text
// model output, repairs common malformations, enforces per-actor allow-lists,
// executes the requested operations and annotates the text with concise
// outcome markers.
//
// Two request shapes are accepted:
//
//	<TOOL_CALL tool="write_file">{"path": "a.txt", "content": "hi"}</TOOL_CALL>
//	<TOOL_CALL>{"tool": "write_file", "params": {"path": "a.txt", "content": "hi"}}</TOOL_CALL>
//
// The parameter object is located with a small brace-balancing scanner
// (nesting depth, in-string flag, escape flag) rather than regular
// expressions, so braces inside quoted values never end extraction early.
// Execution never returns an error: malformed, unauthorized and failing
// requests all degrade to a Result with Success=false and a human-readable
// reason, and narrative text outside matched regions is preserved
// byte-for-byte.
package toolcall
