// Package generation implements the HTTP client for the external
// model-serving gateway that runs parse, image, and video workflows. A
// submission either completes inline or is answered later by a webhook
// callback to the configured public base URL.
package generation
