// Package services holds the shared error taxonomy for Reelsmith's external
// gateway clients and the engine packages built on top of them. Subpackages
// implement the concrete HTTP clients.
package services
