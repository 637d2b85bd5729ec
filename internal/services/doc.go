// Package services implements the domain operations behind the chat dispatcher, the HTTP API and the CLI.
//
// # Spotify
//
// [SpotifyService] is a facade over github.com/zmb3/spotify/v2 that returns [models] types.
// Clients come from a [ClientProvider] ([auth.ClientFactory] in production):
//   - User scoped calls (profile, top items, player, library, playlist writes) need a session,
//     bound with [SpotifyService.ForSession]; without one they fail with [shared.ErrNotAuthenticated]
//   - Catalog calls (artists, albums, tracks, playlists, browse, search) use the app client and
//     fall back to the user client when client credentials are not configured
//
// # Search and Browse
//
// [SpotifyService.Search] builds a field-filtered query with [BuildSearchQuery] and filters
// artists and tracks by popularity bucket. [SpotifyService.CategoryPlaylists] retries other
// markets when a category is empty or missing. [SpotifyService.Genres] never fails and falls
// back to [FallbackGenres].
//
// # Artist Metrics
//
// [SpotifyService.BasicMetrics] fetches an artist and their top tracks concurrently with
// errgroup, retries transient failures with exponential backoff and caches the result in a
// [store.Store] for [MetricsTTL].
//
// # Playlist Builder
//
// [PlaylistBuilder] keeps a draft selection in the session under [DraftKey] until it is saved
// as a playlist.
//
// # Gemini
//
// [GeminiService] answers messages the chat dispatcher cannot route.
//
// # Error Handling
//
// Spotify failures are returned as [*shared.UpstreamError] with Service "spotify" and the HTTP
// status; [shared.ErrNotAuthenticated] and [shared.ErrConfiguration] pass through unchanged.
package services
