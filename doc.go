// Package goGraph authenticates web requests against a social-graph platform and hands
// out API clients bound to the resulting session.
//
// An [App] is built once through [Builder.Build] and is safe for concurrent use. Each
// request gets its own auth context: [App.Canvas] for pages rendered in the platform's
// canvas frame, [App.OAuth] for the authorization-code flow. Both implement
// [AuthContext].
//
// # Architecture boundaries
//
// goGraph is the public surface. Wire concerns live in subpackages: variant (JSON
// reader), transport (HTTP exchange, sync and async), graphapi (API calls and error
// bodies), signature (signed payloads) and session (model and storage).
//
// # What this package must NOT do
//
//   - Log access tokens, secrets or signatures.
//   - Trust a session loaded from insecure storage without re-verifying its signature.
//   - Share an auth context between requests.
//   - Import any sub-package that re-imports goGraph (no import cycles).
package goGraph
