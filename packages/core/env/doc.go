// Package env resolves ${name} variable markers in request templates.
//
// Substitution is exact-name and single-pass: a marker whose name is unknown
// is left verbatim, and a substituted value is never scanned again. Nested
// maps and slices are walked so that query parameters and request bodies can
// be resolved in place; non-string leaves pass through untouched.
package env
