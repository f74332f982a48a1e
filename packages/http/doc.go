// Package http provides the HTTP transport used to dispatch test cases.
//
// It wraps the standard library's http package with additional features:
//   - Configurable timeouts, TLS verification and proxy
//   - Redirect handling
//   - Optional global rate limiting of outbound requests
//   - JSON or raw request bodies built from decoded values
//   - Response facts with the body decoded into a JSON tree
package http
