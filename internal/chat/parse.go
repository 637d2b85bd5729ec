package chat

import (
	"strconv"
	"strings"

	"github.com/desertthunder/spotchat/internal/models"
)

// MaxLimit bounds limits parsed from messages.
const MaxLimit = 50

// ExtractTimeRange picks the listening window mentioned in msg. "short" wins over "long";
// anything else is [models.MediumTerm].
func ExtractTimeRange(msg string) models.TimeRange {
	switch {
	case strings.Contains(msg, "short"):
		return models.ShortTerm
	case strings.Contains(msg, "long"):
		return models.LongTerm
	default:
		return models.MediumTerm
	}
}

// ExtractLimit returns the first whitespace delimited integer in (0, MaxLimit], or def.
func ExtractLimit(msg string, def int) int {
	for _, word := range strings.Fields(msg) {
		if n, err := strconv.Atoi(word); err == nil && n > 0 && n <= MaxLimit {
			return n
		}
	}
	return def
}

// ExtractArtistName strips a lead-in phrase ("artist ", "tell me about ", ...) from the start of msg.
// A message that is only a lead-in yields "".
func ExtractArtistName(msg string) string {
	msg = strings.TrimSpace(msg) + " "
	for _, p := range []string{"tell me about ", "who is ", "artist ", "search for ", "search "} {
		if rest, ok := strings.CutPrefix(msg, p); ok {
			return strings.TrimSpace(rest)
		}
	}
	return strings.TrimSpace(msg)
}

// extractAfter returns the text following the first of phrases found in msg.
func extractAfter(msg string, phrases []string) string {
	for _, p := range phrases {
		if i := strings.Index(msg, p); i >= 0 {
			return strings.TrimSpace(msg[i+len(p):])
		}
	}
	return strings.TrimSpace(msg)
}

// ExtractSearchQuery returns the artist named after "search for", "find artist" or "look up".
func ExtractSearchQuery(msg string) string {
	return extractAfter(msg, artistSearchPhrases)
}

// ExtractAlbumArtist returns the artist named after "albums by" or "album by".
func ExtractAlbumArtist(msg string) string {
	return extractAfter(msg, albumPhrases)
}

// ExtractTrackName strips the "track " or "song " prefix.
func ExtractTrackName(msg string) string {
	msg = strings.TrimSpace(msg)
	for _, p := range trackPrefixes {
		if rest, ok := strings.CutPrefix(msg, p); ok {
			return strings.TrimSpace(rest)
		}
	}
	return msg
}

// statsFillers are removed from stats questions in order, longest first.
var statsFillers = []string{
	"how many monthly listeners does",
	"how many monthly listeners do",
	"how many followers does",
	"how many followers do",
	"how many listeners does",
	"how many listeners do",
	"how popular is",
	"how popular are",
	"monthly listeners",
	"followers does",
	"stats for",
	"the artist",
	"the band",
	"followers",
	"listeners",
	"artist",
	"stats",
	"have",
	"has",
}

// ExtractStatsArtist reduces a stats question ("how many followers does radiohead have?")
// to the artist name. Fillers only match whole words.
func ExtractStatsArtist(msg string) string {
	s := " " + strings.NewReplacer("?", " ", "!", " ", ",", " ").Replace(msg) + " "
	s = strings.Join(strings.Fields(s), " ")
	s = " " + s + " "
	for _, f := range statsFillers {
		for strings.Contains(s, " "+f+" ") {
			s = strings.ReplaceAll(s, " "+f+" ", " ")
		}
	}
	return strings.Join(strings.Fields(s), " ")
}
