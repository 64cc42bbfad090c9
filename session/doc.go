// Package session holds the authenticated-user [Session] model and the storages that
// persist it between requests.
//
// # Wire forms
//
// A session has three encodings: the flat map used for signatures ([Session.ToMap]),
// the quoted query-string cookie ([EncodeCookie]) and a compact versioned binary form
// ([Encode]) used by server-side backends. In every form an expiry of 0 stands for
// [NeverExpires].
//
// # Storages
//
//   - [CookieStore] keeps the session on the client. It is not secure: callers must
//     re-verify the signature of what it returns.
//   - [ServerStore] keeps the session in a [Backend] ([MemoryBackend], [RedisBackend])
//     and gives the client only an opaque id. It is secure.
//
// # What this package must NOT do
//
//   - Import goGraph (no upward imports).
//   - Decide whether a loaded session is trusted; that belongs to the auth contexts.
package session
