// Package composition implements the HTTP client for the external gateway
// that concatenates ordered ready video segments into the final reel.
package composition
