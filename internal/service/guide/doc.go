// Package guide manages the downloadable seller guides, one or more per
// persona, and their rendered PDF files.
package guide
