// Package ai wraps the language model and feed sources used for article
// generation: an OpenAI-compatible chat client (OpenAI and Perplexity share
// the /chat/completions wire format) and an RSS reader for topic ideas.
package ai
