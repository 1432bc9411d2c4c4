// Package http exposes the operation dispatcher over HTTP.
//
// Every file operation goes through one endpoint:
//
//	ANY /cloud/:username?q=<operation>&adapter=<key>&path=<address>
//
// The username segment selects whose storage is addressed; the bearer
// token identifies the caller. JSON bodies and multipart uploads are capped
// at the configured size. Results are rendered as JSON, or streamed with a
// Content-Disposition header for preview and downloads.
package http
