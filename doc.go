// Package eventhive is the Go client SDK for the EventHive platform. It owns
// the client side of authentication: token persistence, the HTTP pipeline that
// attaches bearer credentials and transparently refreshes them, the session
// state machine, and route authorization decisions.
//
// Token lifecycle:
//   - TokenStore persists the access/refresh token pair together with the
//     cached user profile so a process restart resumes an authenticated
//     session without a verification round trip.
//   - Transport is the single choke point for outbound requests. It attaches
//     the access token, intercepts 401 responses, refreshes the pair exactly
//     once per request, and coalesces concurrent refreshes into a single
//     in-flight call shared by all waiters.
//
// Session state:
//   - SessionManager serializes every mutation of "who is signed in and with
//     what role" behind a fixed set of actions (Login, Register, VerifyOTP,
//     Logout, ...). Actions never leak raw errors; each resolves to a
//     discriminated result carrying a normalized rich error on failure.
//
// Route authorization:
//   - Decide is a pure function from (RouteRequirement, Session, path) to a
//     guard decision. RouteGuard adapts those decisions to go-router
//     middleware for server-rendered consumers, preserving the originally
//     requested location for a post-login return.
package eventhive
