// Package middleware exposes net/http adapters that authenticate requests through a
// goGraph.App.
//
// # Guards
//
//   - [Guard] selects the flow explicitly.
//   - [RequireCanvas] handles pages rendered in the canvas frame.
//   - [RequireOAuth] handles standalone pages using the authorization-code flow.
//
// Each guard creates one auth context per request, authenticates it and injects it
// with a goGraph.Identity into the request context.
//
// # What this package must NOT do
//
//   - Verify signatures or exchange codes itself (delegates to the auth contexts).
//   - Reuse an auth context across requests.
//   - Make authorization decisions beyond authenticated or not.
package middleware
