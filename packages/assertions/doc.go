// Package assertions evaluates test case expectations against response facts.
//
// Supported assertion types:
//   - status_code: the HTTP status
//   - response_body: a value selected with a $.a.b path
//   - response_headers: a header looked up case-insensitively
//   - response_time: the round trip in milliseconds
//
// Operators are equals (the default), not_equals, contains, not_contains and
// the numeric comparisons greater_than, less_than, greater_than_or_equal and
// less_than_or_equal. An unknown operator never passes.
package assertions
