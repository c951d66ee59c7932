// Package model provides inference client implementations behind the
// provider-agnostic core.InferenceClient and core.ToolCapableClient
// contracts, plus a deterministic Mock for tests and examples. Provider
// subpackages (openai, anthropic, ollama) wrap the vendor SDKs so higher
// layers stay decoupled from them.
package model
