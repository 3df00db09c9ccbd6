// Package api defines the transport representations shared by the daemon's
// HTTP responses and the CLI's rendering, plus the request bodies the CLI
// posts back. Conversions from record types live here so the daemon handlers
// and the CLI never disagree about field names or timestamp formats.
package api
