// Package capture extracts values from HTTP responses for use in subsequent requests.
//
// It supports capturing values from:
//   - Response body, with dotted $.a.b paths walked through JSON objects
//   - Response headers, matched case-insensitively
//
// Captured values are stringified and become ${name} variables for the cases
// that run after them in the same execution.
package capture
