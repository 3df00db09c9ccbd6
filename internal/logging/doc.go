// Package logging builds the slog loggers used throughout Reelsmith.
//
// It provides a console handler with flattened key=value attributes, a JSON
// handler for machine consumption, component-scoped child loggers, standard
// field name constants, and retention pruning for on-disk log files.
package logging
