// Package llm provides the language model client used for duplicate detection,
// meeting analysis, and task matching. It supports OpenAI, Azure OpenAI, and
// Anthropic, with retry logic, rate limiting, and response caching layered on
// top of the provider clients.
package llm
