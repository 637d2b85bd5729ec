package services

import (
	"github.com/zmb3/spotify/v2"

	"github.com/desertthunder/spotchat/internal/models"
)

// widestImage returns the URL of the widest image, which Spotify usually lists first.
func widestImage(images []spotify.Image) string {
	best, width := "", -1
	for _, img := range images {
		if int(img.Width) > width {
			best, width = img.URL, int(img.Width)
		}
	}
	return best
}

func artistRefs(artists []spotify.SimpleArtist) []models.ArtistRef {
	refs := make([]models.ArtistRef, 0, len(artists))
	for _, a := range artists {
		refs = append(refs, models.ArtistRef{ID: a.ID.String(), Name: a.Name})
	}
	return refs
}

func toProfile(u *spotify.PrivateUser) *models.UserProfile {
	return &models.UserProfile{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Country:     u.Country,
		Product:     u.Product,
		Followers:   int(u.Followers.Count),
		ImageURL:    widestImage(u.Images),
		URI:         string(u.URI),
	}
}

func toArtist(a spotify.FullArtist) models.Artist {
	return models.Artist{
		ID:         a.ID.String(),
		Name:       a.Name,
		Genres:     a.Genres,
		Popularity: int(a.Popularity),
		Followers:  int(a.Followers.Count),
		ImageURL:   widestImage(a.Images),
		URI:        string(a.URI),
	}
}

func toArtists(in []spotify.FullArtist) []models.Artist {
	out := make([]models.Artist, 0, len(in))
	for _, a := range in {
		out = append(out, toArtist(a))
	}
	return out
}

func toSimpleTrack(t spotify.SimpleTrack) models.Track {
	return models.Track{
		ID:         t.ID.String(),
		Name:       t.Name,
		Artists:    artistRefs(t.Artists),
		DurationMS: int(t.Duration),
		Explicit:   t.Explicit,
		PreviewURL: t.PreviewURL,
		URI:        string(t.URI),
	}
}

func toTrack(t spotify.FullTrack) models.Track {
	track := toSimpleTrack(t.SimpleTrack)
	track.Album = t.Album.Name
	track.AlbumID = t.Album.ID.String()
	track.ImageURL = widestImage(t.Album.Images)
	track.Popularity = int(t.Popularity)
	return track
}

func toTracks(in []spotify.FullTrack) []models.Track {
	out := make([]models.Track, 0, len(in))
	for _, t := range in {
		out = append(out, toTrack(t))
	}
	return out
}

func toSimpleAlbum(a spotify.SimpleAlbum) models.Album {
	return models.Album{
		ID:          a.ID.String(),
		Name:        a.Name,
		Artists:     artistRefs(a.Artists),
		AlbumType:   a.AlbumType,
		ReleaseDate: a.ReleaseDate,
		TotalTracks: int(a.TotalTracks),
		ImageURL:    widestImage(a.Images),
		URI:         string(a.URI),
	}
}

func toAlbums(in []spotify.SimpleAlbum) []models.Album {
	out := make([]models.Album, 0, len(in))
	for _, a := range in {
		out = append(out, toSimpleAlbum(a))
	}
	return out
}

func toPlaylist(p spotify.SimplePlaylist) models.Playlist {
	return models.Playlist{
		ID:          p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		Owner:       p.Owner.DisplayName,
		Public:      p.IsPublic,
		TrackCount:  int(p.Tracks.Total),
		ImageURL:    widestImage(p.Images),
		URI:         string(p.URI),
	}
}

func toPlaylists(in []spotify.SimplePlaylist) []models.Playlist {
	out := make([]models.Playlist, 0, len(in))
	for _, p := range in {
		out = append(out, toPlaylist(p))
	}
	return out
}
