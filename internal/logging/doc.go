// Package logging builds the slog logger from configuration.
package logging
