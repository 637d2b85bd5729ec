// Package models defines the domain types shared by the spotchat services, chat dispatcher and HTTP layer.
//
// The package contains three groups of types:
//
// 1. Authentication state, owned by the session and cache storage
//   - [TokenRecord] : the user's OAuth token, stored as JSON under a fixed session key
//   - [PKCEChallenge] : verifier, challenge and state generated for one login attempt
//
// 2. Catalog and listening data returned by the Spotify facade
//   - [UserProfile], [Artist], [Track], [Album], [Playlist], [Category]
//   - [PlayHistory] and [NowPlaying] for the player endpoints
//   - [ArtistMetrics], [ArtistDetails] and [ProfileOverview] for combined views
//
// 3. Request parameters
//   - [TimeRange] : closed enum over Spotify's short, medium and long listening windows
//   - [SearchCriteria] : advanced search filters with [SearchCriteria.Normalize] enforcing limits
//   - [Popularity] : disjoint buckets over the 0-100 popularity score
//
// None of these types are persisted beyond the ephemeral session/cache store.
package models
