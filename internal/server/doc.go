// Package server provides HTTP routing, middleware and handlers for the spotchat web service and CLI login.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation registers [http.ServeMux] method patterns ("POST /chat/send"), so the mux
// answers 405 for other methods.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
//
// # Routes
//
//	GET  /                   landing data (new releases, top artists, top tracks)
//	GET  /auth/login         302 to the Spotify authorize URL (PKCE)
//	GET  /auth/callback      completes the login, 302 to /
//	GET  /auth/logout        drops the session token, 302 to /
//	POST /chat/send          {"message": "..."} -> {"message": "..."}
//	     /api/...            JSON for profile, top items, playlists, catalog lookups, search,
//	                         browse, artist metrics and the playlist builder
//
// # Errors
//
// API errors are JSON {"error": "..."}. Missing or rejected tokens answer 401 with a login_url,
// Spotify rate limits answer 429 with Retry-After, validation problems 400 and other upstream
// failures 502. The chat endpoint always answers 200 with a reply unless the message is empty
// or the client is over its rate limit.
//
// # CLI Login
//
// [CLILoginHandler] serves the OAuth callback on a temporary localhost server during `spotchat login`.
// It only processes one callback and reports the result through a channel.
package server
