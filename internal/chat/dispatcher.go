package chat

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spotchat/internal/formatter"
	"github.com/desertthunder/spotchat/internal/models"
	"github.com/desertthunder/spotchat/internal/shared"
)

// Music is the Spotify data the dispatcher answers from.
//
// [services.SpotifyService] bound to a session implements it.
type Music interface {
	TopArtists(ctx context.Context, tr models.TimeRange, limit int) ([]models.Artist, error)
	TopTracks(ctx context.Context, tr models.TimeRange, limit int) ([]models.Track, error)
	RecentlyPlayed(ctx context.Context, limit int) ([]models.PlayHistory, error)
	Profile(ctx context.Context) (*models.UserProfile, error)
	Playlists(ctx context.Context, limit int) ([]models.Playlist, error)
	CurrentlyPlaying(ctx context.Context) (*models.NowPlaying, error)
	SavedTracks(ctx context.Context, limit int) ([]models.Track, error)
	SearchArtists(ctx context.Context, name string, limit int) ([]models.Artist, error)
	ArtistAlbums(ctx context.Context, id string, limit int) ([]models.Album, error)
	SearchTracks(ctx context.Context, query string, limit int) ([]models.Track, error)
	BasicMetrics(ctx context.Context, artistID string) (*models.ArtistMetrics, error)
}

// Fallback answers messages that match no intent.
type Fallback interface {
	Generate(ctx context.Context, message string) (string, error)
}

// Default result sizes per intent.
const (
	DefaultTopLimit     = 5
	DefaultListLimit    = 10
	DefaultTrackResults = 5

	artistLookupLimit = 1
	artistAlbumsLimit = 10
)

// UnrecognizedReply answers unmatched messages when no fallback is configured.
const UnrecognizedReply = "I'm not sure what you're asking. Type 'help' to see what I can do!"

const emptyMessageReply = "Type a message to get started, or 'help' to see what I can do."

// Outcome classifies how an intent handler finished.
type Outcome int

const (
	OK Outcome = iota
	NeedsReauth
	Failed
)

func (o Outcome) String() string {
	switch o {
	case NeedsReauth:
		return "needs_reauth"
	case Failed:
		return "failed"
	default:
		return "ok"
	}
}

// Result is the outcome of one chat turn. Reply is always set; Err is set unless Outcome is OK.
type Result struct {
	Intent  Intent
	Reply   string
	Outcome Outcome
	Err     error
}

// Dispatcher routes chat messages to intent handlers.
type Dispatcher struct {
	music    Music
	fallback Fallback
	location *time.Location
	logger   *log.Logger
}

// Opts configures a [Dispatcher].
type Opts struct {
	Music    Music
	Fallback Fallback
	// Location renders play times. Defaults to time.Local.
	Location *time.Location
	Logger   *log.Logger
}

// New creates a [Dispatcher].
func New(opts Opts) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Dispatcher{
		music:    opts.Music,
		fallback: opts.Fallback,
		location: opts.Location,
		logger:   shared.WithLogger(opts.Logger, "component", "chat"),
	}
}

// ProcessMessage answers msg. It never fails; errors are rendered into the reply.
func (d *Dispatcher) ProcessMessage(ctx context.Context, msg string) string {
	return d.Dispatch(ctx, msg).Reply
}

// Dispatch classifies msg and runs the matching handler.
func (d *Dispatcher) Dispatch(ctx context.Context, msg string) Result {
	norm := Normalize(msg)
	if norm == "" {
		return Result{Intent: Unmatched, Reply: emptyMessageReply}
	}

	intent := Classify(norm)
	d.logger.Debug("dispatching chat message", "intent", intent)

	var (
		reply string
		err   error
	)
	if intent == Unmatched {
		reply, err = d.generate(ctx, msg)
	} else {
		reply, err = d.handle(ctx, intent, norm)
	}
	if err != nil {
		res := failure(intent, err)
		d.logger.Warn("chat intent failed", "intent", intent, "outcome", res.Outcome, "error", err)
		return res
	}
	return Result{Intent: intent, Reply: reply, Outcome: OK}
}

func failure(intent Intent, err error) Result {
	res := Result{Intent: intent, Err: err, Outcome: Failed}
	up, _ := shared.AsUpstream(err)
	switch {
	case errors.Is(err, shared.ErrNotAuthenticated):
		res.Outcome = NeedsReauth
		res.Reply = formatter.LoginRequired
	case up != nil && up.InsufficientScope():
		res.Outcome = NeedsReauth
		res.Reply = formatter.ScopeRequired
	case up != nil && up.NeedsReauth():
		res.Outcome = NeedsReauth
		res.Reply = formatter.LoginRequired
	case up != nil && up.IsRateLimited():
		res.Reply = formatter.RateLimited(up.RetryAfter)
	default:
		res.Reply = formatter.Failure(err)
	}
	return res
}

func (d *Dispatcher) generate(ctx context.Context, msg string) (string, error) {
	if d.fallback == nil {
		return UnrecognizedReply, nil
	}
	return d.fallback.Generate(ctx, msg)
}

func (d *Dispatcher) handle(ctx context.Context, intent Intent, msg string) (string, error) {
	switch intent {
	case TopArtists:
		tr := ExtractTimeRange(msg)
		artists, err := d.music.TopArtists(ctx, tr, ExtractLimit(msg, DefaultTopLimit))
		if err != nil {
			return "", err
		}
		return formatter.TopArtists(artists, tr), nil
	case TopTracks:
		tr := ExtractTimeRange(msg)
		tracks, err := d.music.TopTracks(ctx, tr, ExtractLimit(msg, DefaultTopLimit))
		if err != nil {
			return "", err
		}
		return formatter.TopTracks(tracks, tr), nil
	case RecentlyPlayed:
		history, err := d.music.RecentlyPlayed(ctx, DefaultListLimit)
		if err != nil {
			return "", err
		}
		return formatter.RecentlyPlayed(history, d.location), nil
	case Profile:
		p, err := d.music.Profile(ctx)
		if err != nil {
			return "", err
		}
		return formatter.Profile(p), nil
	case Playlists:
		playlists, err := d.music.Playlists(ctx, DefaultListLimit)
		if err != nil {
			return "", err
		}
		return formatter.Playlists(playlists), nil
	case CurrentlyPlaying:
		now, err := d.music.CurrentlyPlaying(ctx)
		if err != nil {
			return "", err
		}
		return formatter.CurrentlyPlaying(now), nil
	case SavedTracks:
		tracks, err := d.music.SavedTracks(ctx, DefaultListLimit)
		if err != nil {
			return "", err
		}
		return formatter.SavedTracks(tracks), nil
	case ArtistLookup:
		return d.artist(ctx, ExtractArtistName(msg))
	case ArtistSearch:
		return d.artist(ctx, ExtractSearchQuery(msg))
	case ArtistAlbums:
		return d.albums(ctx, ExtractAlbumArtist(msg))
	case TrackSearch:
		return d.tracks(ctx, ExtractTrackName(msg))
	case Help:
		return formatter.Help(), nil
	case ArtistStats:
		return d.stats(ctx, ExtractStatsArtist(msg))
	default:
		return d.generate(ctx, msg)
	}
}

// findArtist returns the best match for name, or nil when there is none.
func (d *Dispatcher) findArtist(ctx context.Context, name string) (*models.Artist, error) {
	artists, err := d.music.SearchArtists(ctx, name, artistLookupLimit)
	if err != nil || len(artists) == 0 {
		return nil, err
	}
	return &artists[0], nil
}

func (d *Dispatcher) artist(ctx context.Context, name string) (string, error) {
	if name == "" {
		return formatter.MissingArtistName, nil
	}
	a, err := d.findArtist(ctx, name)
	if err != nil {
		return "", err
	}
	if a == nil {
		return formatter.ArtistNotFound(name), nil
	}
	return formatter.Artist(*a), nil
}

func (d *Dispatcher) albums(ctx context.Context, name string) (string, error) {
	if name == "" {
		return formatter.MissingAlbumName, nil
	}
	a, err := d.findArtist(ctx, name)
	if err != nil {
		return "", err
	}
	if a == nil {
		return formatter.ArtistNotFound(name), nil
	}
	albums, err := d.music.ArtistAlbums(ctx, a.ID, artistAlbumsLimit)
	if err != nil {
		return "", err
	}
	return formatter.ArtistAlbums(a.Name, albums), nil
}

func (d *Dispatcher) tracks(ctx context.Context, name string) (string, error) {
	if name == "" {
		return formatter.MissingTrackName, nil
	}
	tracks, err := d.music.SearchTracks(ctx, name, DefaultTrackResults)
	if err != nil {
		return "", err
	}
	if len(tracks) == 0 {
		return formatter.TrackNotFound(name), nil
	}
	return formatter.TrackResults(name, tracks), nil
}

func (d *Dispatcher) stats(ctx context.Context, name string) (string, error) {
	if name == "" {
		return formatter.MissingArtistName, nil
	}
	a, err := d.findArtist(ctx, name)
	if err != nil {
		return "", err
	}
	if a == nil {
		return formatter.ArtistNotFound(name), nil
	}
	m, err := d.music.BasicMetrics(ctx, a.ID)
	if err != nil {
		return "", err
	}
	return formatter.ArtistStats(m), nil
}
