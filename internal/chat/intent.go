// package chat classifies chat messages into intents and answers them from Spotify data,
// forwarding anything it does not recognize to a text generation fallback.
package chat

import "strings"

// Intent is the classified purpose of a chat message.
type Intent int

const (
	Unmatched Intent = iota
	TopArtists
	TopTracks
	RecentlyPlayed
	Profile
	Playlists
	CurrentlyPlaying
	SavedTracks
	ArtistLookup
	ArtistSearch
	ArtistAlbums
	TrackSearch
	Help
	ArtistStats
)

func (i Intent) String() string {
	switch i {
	case TopArtists:
		return "top_artists"
	case TopTracks:
		return "top_tracks"
	case RecentlyPlayed:
		return "recently_played"
	case Profile:
		return "profile"
	case Playlists:
		return "playlists"
	case CurrentlyPlaying:
		return "currently_playing"
	case SavedTracks:
		return "saved_tracks"
	case ArtistLookup:
		return "artist_lookup"
	case ArtistSearch:
		return "artist_search"
	case ArtistAlbums:
		return "artist_albums"
	case TrackSearch:
		return "track_search"
	case Help:
		return "help"
	case ArtistStats:
		return "artist_stats"
	default:
		return "unmatched"
	}
}

// Keyword sets per intent.
var (
	topArtistKeywords    = []string{"top artist", "favorite artist", "my artist"}
	topTrackKeywords     = []string{"top track", "top song", "favorite song", "favorite track"}
	recentKeywords       = []string{"recently played", "recent song", "what did i listen", "what did i just listen", "just listened", "last played"}
	profileKeywords      = []string{"profile", "who am i", "my name", "my account"}
	playlistKeywords     = []string{"playlist", "my playlist"}
	currentKeywords      = []string{"currently playing", "what's playing", "now playing"}
	savedKeywords        = []string{"saved track", "liked song", "my song"}
	artistLookupPrefixes = []string{"artist ", "tell me about ", "who is ", "search "}
	artistSearchPhrases  = []string{"search for", "find artist", "look up"}
	albumPhrases         = []string{"albums by", "album by"}
	trackPrefixes        = []string{"track ", "song "}
	helpKeywords         = []string{"help", "what can you do", "commands"}
	artistStatsKeywords  = []string{"followers", "listeners", "how popular", "stats for"}
)

type rule struct {
	intent Intent
	match  func(msg string) bool
}

func containsAny(keywords ...string) func(string) bool {
	return func(msg string) bool {
		for _, k := range keywords {
			if strings.Contains(msg, k) {
				return true
			}
		}
		return false
	}
}

func hasAnyPrefix(prefixes ...string) func(string) bool {
	return func(msg string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(msg, p) {
				return true
			}
		}
		return false
	}
}

// rules are evaluated in order and the first match wins. Specific phrases must
// precede generic ones.
var rules = []rule{
	{TopArtists, containsAny(topArtistKeywords...)},
	{TopTracks, containsAny(topTrackKeywords...)},
	{RecentlyPlayed, containsAny(recentKeywords...)},
	{Profile, containsAny(profileKeywords...)},
	{Playlists, containsAny(playlistKeywords...)},
	{CurrentlyPlaying, containsAny(currentKeywords...)},
	{SavedTracks, containsAny(savedKeywords...)},
	{ArtistLookup, hasAnyPrefix(artistLookupPrefixes...)},
	{ArtistSearch, containsAny(artistSearchPhrases...)},
	{ArtistAlbums, containsAny(albumPhrases...)},
	{TrackSearch, hasAnyPrefix(trackPrefixes...)},
	{Help, containsAny(helpKeywords...)},
	{ArtistStats, containsAny(artistStatsKeywords...)},
}

// Normalize lowercases and trims msg.
func Normalize(msg string) string {
	return strings.ToLower(strings.TrimSpace(msg))
}

// Classify returns the intent of msg.
func Classify(msg string) Intent {
	msg = Normalize(msg)
	if msg == "" {
		return Unmatched
	}
	for _, r := range rules {
		if r.match(msg) {
			return r.intent
		}
	}
	return Unmatched
}
