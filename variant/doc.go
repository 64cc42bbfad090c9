// Package variant provides a lazily-typed reader over JSON documents returned by the
// graph API.
//
// Every JSON node decodes to a [Value] that is a dictionary, an array, a scalar or null.
// Scalars keep their raw text: numbers keep the JSON literal and booleans become
// "true"/"false". Integer, boolean and date views parse the scalar on first query and
// cache the outcome.
//
// # What this package must NOT do
//
//   - Map documents onto caller structs (callers read fields by key).
//   - Import goGraph or any transport package.
package variant
