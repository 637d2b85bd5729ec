// package formatter renders domain data as chat replies and playlist exports (CSV, Markdown, plain text)
package formatter

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/desertthunder/spotchat/internal/models"
)

var printer = message.NewPrinter(language.English)

// FormatCount renders n with thousands separators.
func FormatCount(n int) string {
	return printer.Sprintf("%d", n)
}

// FormatDuration renders milliseconds as m:ss.
func FormatDuration(ms int) string {
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

// VisibilityString returns "Public" or "Private".
func VisibilityString(public bool) string {
	if public {
		return "Public"
	}
	return "Private"
}

func join(names []string) string {
	return strings.Join(names, ", ")
}

// TopArtists renders the numbered top artists list. The header counts the artists actually returned.
func TopArtists(artists []models.Artist, tr models.TimeRange) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎤 Your Top %d Artists (%s):\n\n", len(artists), tr.Label())
	for i, a := range artists {
		genres := ""
		if len(a.Genres) > 0 {
			genres = " (" + join(a.Genres[:min(2, len(a.Genres))]) + ")"
		}
		fmt.Fprintf(&b, "%d. %s%s\n", i+1, a.Name, genres)
		fmt.Fprintf(&b, "   Popularity: %d/100 | Followers: %s\n", a.Popularity, FormatCount(a.Followers))
	}
	return b.String()
}

// TopTracks renders the numbered top tracks list.
func TopTracks(tracks []models.Track, tr models.TimeRange) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎵 Your Top %d Tracks (%s):\n\n", len(tracks), tr.Label())
	for i, t := range tracks {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t.Name)
		fmt.Fprintf(&b, "   by %s\n", join(t.ArtistNames()))
		fmt.Fprintf(&b, "   Album: %s\n", t.Album)
	}
	return b.String()
}

// RecentlyPlayed renders play history with play times in loc.
func RecentlyPlayed(history []models.PlayHistory, loc *time.Location) string {
	if len(history) == 0 {
		return "You haven't played anything recently."
	}
	var b strings.Builder
	b.WriteString("🕐 Your Recently Played Tracks:\n\n")
	for _, h := range history {
		fmt.Fprintf(&b, "• %s by %s\n", h.Track.Name, join(h.Track.ArtistNames()))
		fmt.Fprintf(&b, "  Played at: %s\n", h.PlayedAt.In(loc).Format("Jan 2, 15:04"))
	}
	return b.String()
}

// Profile renders the user's account details.
func Profile(p *models.UserProfile) string {
	var b strings.Builder
	b.WriteString("👤 Your Spotify Profile:\n\n")
	fmt.Fprintf(&b, "Name: %s\n", p.DisplayName)
	fmt.Fprintf(&b, "Email: %s\n", p.Email)
	fmt.Fprintf(&b, "Country: %s\n", p.Country)
	fmt.Fprintf(&b, "Followers: %s\n", FormatCount(p.Followers))
	fmt.Fprintf(&b, "Product: %s\n", p.Product)
	return b.String()
}

// Playlists renders the user's playlists.
func Playlists(playlists []models.Playlist) string {
	if len(playlists) == 0 {
		return "You don't have any playlists yet."
	}
	var b strings.Builder
	b.WriteString("📋 Your Playlists:\n\n")
	for _, p := range playlists {
		fmt.Fprintf(&b, "• %s\n", p.Name)
		fmt.Fprintf(&b, "  %d tracks | %s\n", p.TrackCount, VisibilityString(p.Public))
	}
	return b.String()
}

// CurrentlyPlaying renders the current playback.
func CurrentlyPlaying(now *models.NowPlaying) string {
	if now == nil || now.Track == nil {
		return "No track is currently playing."
	}
	t := now.Track
	state := "⏸️ Paused"
	if now.IsPlaying {
		state = "▶️ Yes"
	}
	return fmt.Sprintf("🎧 Currently Playing:\n\n%s\nby %s\nAlbum: %s\nProgress: %s / %s\nPlaying: %s",
		t.Name, join(t.ArtistNames()), t.Album, FormatDuration(now.ProgressMS), FormatDuration(t.DurationMS), state)
}

// SavedTracks renders the user's liked tracks.
func SavedTracks(tracks []models.Track) string {
	var b strings.Builder
	fmt.Fprintf(&b, "💚 Your Saved Tracks (Recent %d):\n\n", len(tracks))
	for _, t := range tracks {
		fmt.Fprintf(&b, "• %s by %s\n", t.Name, join(t.ArtistNames()))
	}
	return b.String()
}

// Artist renders one artist's details.
func Artist(a models.Artist) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎤 Artist: %s\n\n", a.Name)
	fmt.Fprintf(&b, "Followers: %s\n", FormatCount(a.Followers))
	fmt.Fprintf(&b, "Popularity: %d/100\n", a.Popularity)
	if len(a.Genres) > 0 {
		fmt.Fprintf(&b, "Genres: %s\n", join(a.Genres[:min(5, len(a.Genres))]))
	}
	if a.URI != "" {
		fmt.Fprintf(&b, "\nSpotify URI: %s\n", a.URI)
	}
	return b.String()
}

// ArtistAlbums renders an artist's releases.
func ArtistAlbums(artist string, albums []models.Album) string {
	var b strings.Builder
	fmt.Fprintf(&b, "💿 Albums by %s:\n\n", artist)
	for _, a := range albums {
		fmt.Fprintf(&b, "• %s (%s)\n", a.Name, a.ReleaseDate)
		fmt.Fprintf(&b, "  %d tracks | Type: %s\n", a.TotalTracks, a.AlbumType)
	}
	return b.String()
}

// TrackResults renders numbered track search results.
func TrackResults(query string, tracks []models.Track) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎵 Search Results for '%s':\n\n", query)
	for i, t := range tracks {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t.Name)
		fmt.Fprintf(&b, "   by %s\n", join(t.ArtistNames()))
		fmt.Fprintf(&b, "   Album: %s | Duration: %s\n", t.Album, FormatDuration(t.DurationMS))
	}
	return b.String()
}

// ArtistStats renders an artist's reach metrics.
func ArtistStats(m *models.ArtistMetrics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Stats for %s:\n\n", m.Name)
	fmt.Fprintf(&b, "Followers: %s\n", FormatCount(m.Followers))
	fmt.Fprintf(&b, "Popularity: %d/100\n", m.Popularity)
	fmt.Fprintf(&b, "Top tracks: %d\n", m.TopTracksCount)
	fmt.Fprintf(&b, "Genres: %d\n", m.GenreCount)
	b.WriteString("\nMonthly listener counts are not available from the Spotify API.\n")
	return b.String()
}

// Fixed replies.
const (
	MissingArtistName = "Please provide an artist name to search for."
	MissingAlbumName  = "Please provide an artist name."
	MissingTrackName  = "Please provide a track name to search for."
	LoginRequired     = "You need to log in with Spotify first. Visit /auth/login and then try again."
	ScopeRequired     = "Your Spotify login is missing a permission this command needs. Log out, then log in again at /auth/login to grant it."
)

// ArtistNotFound reports a failed artist lookup.
func ArtistNotFound(name string) string {
	return fmt.Sprintf("I couldn't find any artist named '%s'.", name)
}

// TrackNotFound reports a failed track lookup.
func TrackNotFound(name string) string {
	return fmt.Sprintf("I couldn't find any track named '%s'.", name)
}

// RateLimited reports a 429 with an optional retry hint.
func RateLimited(retryAfter time.Duration) string {
	if retryAfter <= 0 {
		return "Spotify is rate limiting requests right now. Please try again shortly."
	}
	return fmt.Sprintf("Spotify is rate limiting requests right now. Please try again in %s.", retryAfter.Round(time.Second))
}

// Failure renders an error as an apology.
func Failure(err error) string {
	return fmt.Sprintf("Sorry, I encountered an error: %s", err)
}

// Help lists the chat commands.
func Help() string {
	return `🤖 Spotify Chatbot Commands:

📊 Your Data:
• 'top artists' - Show your favorite artists
• 'top tracks' - Show your favorite songs
• 'recently played' - Show recently played tracks
• 'profile' - Show your profile info
• 'playlists' - Show your playlists
• 'currently playing' - What's playing now
• 'saved tracks' - Show your liked songs

🔍 Search:
• 'artist [name]' - Get info about an artist
• 'albums by [artist]' - Show albums by an artist
• 'track [name]' - Search for a track
• 'how many followers does [artist] have' - Artist stats

⏰ Time Ranges (for top items):
Add 'short', 'medium', or 'long' to your query
• 'top artists short term' - Last 4 weeks
• 'top tracks medium term' - Last 6 months (default)
• 'top artists long term' - All time

Add a number to change how many items you get, e.g. 'top tracks 10'.

Type any command to get started!`
}
