// Package authclient is the client-side authentication SDK for the portal
// REST API: persisted token storage, session hydration, and role-aware route
// authorization for patient, doctor, and admin principals.
//
// Session lifecycle:
//   - A Session is constructed once at process start and hydrated from the
//     TokenStore before any UI decision is made. It then transitions between
//     Authenticated and Unauthenticated exclusively through its operations
//     (Login, Register, Logout, UpdateProfile, Deactivate). Observers receive
//     immutable Snapshot values through Subscribe.
//   - The invariant is strict: a Session is Authenticated if and only if it
//     holds a User record, and an Authenticated session always has a usable
//     (non-expired or refreshable) TokenPair behind it.
//
// Transport:
//   - Client wraps net/http, attaches the stored access token as a Bearer
//     credential, and performs a single coalesced refresh-and-retry when the
//     backend answers 401. Refresh failure tears the whole session down: the
//     store is cleared, the SessionExpired signal fires, and the optional
//     Redirector performs a hard navigation to the login route for call sites
//     outside the reactive tree.
//
// Route authorization:
//   - EvaluateRoute is a pure decision function over a session Snapshot and a
//     Requirement. The evaluation order (loading, login, verification, role,
//     doctor approval) is part of the contract; middleware/routeguard adapts
//     decisions to go-router handlers.
package authclient
