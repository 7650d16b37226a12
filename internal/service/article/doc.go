// Package article manages blog articles: hand-written CRUD with unique
// slugs, publication, and AI-assisted drafts researched with Perplexity and
// written with OpenAI.
package article
