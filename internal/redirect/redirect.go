// Package redirect builds error redirect URLs for browser-driven flows.
// Checkout and portal failures are never surfaced as HTTP error statuses;
// they are encoded into a redirect so the frontend can show a toast.
package redirect

import "net/url"

// ErrorURL returns path with the error code and human-readable
// description attached as query parameters.
func ErrorURL(path, code, description string) string {
	q := url.Values{}
	q.Set("error", code)
	q.Set("error_description", description)
	return path + "?" + q.Encode()
}
