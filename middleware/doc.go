// Package middleware adapts authlife session checks to net/http.
//
// # Guards
//
//   - [Guard] verifies a bearer access token, loads the session it names and
//     records activity.
//   - [SessionTokenGuard] resolves an opaque session token from a cookie or
//     header instead of an access token.
//   - [RequireMFA] rejects sessions that have not completed MFA.
//
// A missing, expired or invalidated session yields 401. A session store
// failure yields 503 so clients retry instead of logging the user out.
//
// # What this package must NOT do
//
//   - Sign tokens or touch secret material.
//   - Talk to the session store directly (the Engine does).
package middleware
