// Package export writes conversation transcripts to files, either one
// encoded message per line or as an HTML page rendered from markdown.
package export
