package formatter

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spotchat/internal/models"
)

// Export formats accepted by [WriteExport].
const (
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
	FormatText     = "text"
	FormatJSON     = "json"
)

// Formats lists the supported export formats.
var Formats = []string{FormatCSV, FormatMarkdown, FormatText, FormatJSON}

// ExportToCSV converts a playlist's tracks to CSV with columns: URI, Name, Artists, Album, Duration, Popularity
func ExportToCSV(p *models.Playlist) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"URI", "Name", "Artists", "Album", "Duration", "Popularity"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range p.Tracks {
		record := []string{
			track.URI,
			track.Name,
			strings.Join(track.ArtistNames(), "; "),
			track.Album,
			FormatDuration(track.DurationMS),
			strconv.Itoa(track.Popularity),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportToMarkdown converts a playlist to Markdown with an optional cover image
func ExportToMarkdown(p *models.Playlist, imageFilename string) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", p.Name)
	if imageFilename != "" {
		fmt.Fprintf(&buf, "![Cover](%s)\n\n", imageFilename)
	}
	if p.Description != "" {
		fmt.Fprintf(&buf, "**Description**: %s\n\n", p.Description)
	}
	if p.Owner != "" {
		fmt.Fprintf(&buf, "**Owner**: %s\n", p.Owner)
	}
	fmt.Fprintf(&buf, "**Tracks**: %d\n", len(p.Tracks))
	fmt.Fprintf(&buf, "**Visibility**: %s\n\n", VisibilityString(p.Public))

	buf.WriteString("## Tracks\n\n")
	for i, track := range p.Tracks {
		albumPart := ""
		if track.Album != "" {
			albumPart = fmt.Sprintf(" (%s)", track.Album)
		}
		fmt.Fprintf(&buf, "%d. %s - %s%s [%s]\n",
			i+1, join(track.ArtistNames()), track.Name, albumPart, FormatDuration(track.DurationMS))
	}
	return buf.Bytes(), nil
}

// ExportToText converts a playlist to plain text
func ExportToText(p *models.Playlist) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Playlist: %s\n", p.Name)
	if p.Description != "" {
		fmt.Fprintf(&buf, "Description: %s\n", p.Description)
	}
	fmt.Fprintf(&buf, "Tracks: %d\n\n", len(p.Tracks))

	for i, track := range p.Tracks {
		fmt.Fprintf(&buf, "%d. %s - %s\n", i+1, join(track.ArtistNames()), track.Name)
	}
	return buf.Bytes(), nil
}

// ExportToJSON encodes the playlist and its tracks as indented JSON
func ExportToJSON(p *models.Playlist) ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

// DownloadImage fetches an image and returns the raw bytes
func DownloadImage(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("empty URL provided")
	}
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build image request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	return data, nil
}

// ExportResult lists the files written by an export.
type ExportResult struct {
	Files      []string
	CoverImage string
}

// WriteExport writes p in format under base.
//
// base defaults to the playlist ID. CSV writes {base}_tracks.csv and {base}_metadata.json,
// Markdown writes {base}/README.md plus {base}/cover.jpg when the cover downloads,
// text writes {base}_tracks.txt and JSON writes {base}.json.
func WriteExport(ctx context.Context, p *models.Playlist, format, base string, client *http.Client) (*ExportResult, error) {
	if base == "" {
		base = p.ID
	}

	switch format {
	case FormatCSV:
		return writeCSVExport(p, base)
	case FormatMarkdown:
		return writeMarkdownExport(ctx, p, base, client)
	case FormatText:
		return writeFile(base+"_tracks.txt", p, ExportToText)
	case FormatJSON:
		return writeFile(base+".json", p, ExportToJSON)
	default:
		return nil, fmt.Errorf("unsupported export format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

func writeFile(path string, p *models.Playlist, render func(*models.Playlist) ([]byte, error)) (*ExportResult, error) {
	data, err := render(p)
	if err != nil {
		return nil, fmt.Errorf("failed to render export: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return &ExportResult{Files: []string{path}}, nil
}

func writeCSVExport(p *models.Playlist, base string) (*ExportResult, error) {
	tracks, err := writeFile(base+"_tracks.csv", p, ExportToCSV)
	if err != nil {
		return nil, err
	}

	meta := *p
	meta.Tracks = nil
	metadata, err := writeFile(base+"_metadata.json", &meta, ExportToJSON)
	if err != nil {
		return nil, err
	}
	return &ExportResult{Files: append(tracks.Files, metadata.Files...)}, nil
}

func writeMarkdownExport(ctx context.Context, p *models.Playlist, dir string, client *http.Client) (*ExportResult, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	result := &ExportResult{}
	var cover string
	if p.ImageURL != "" {
		if data, err := DownloadImage(ctx, client, p.ImageURL); err != nil {
			log.Warn("failed to download cover image", "playlist", p.ID, "error", err)
		} else {
			path := filepath.Join(dir, "cover.jpg")
			if err := os.WriteFile(path, data, 0644); err != nil {
				log.Warn("failed to save cover image", "path", path, "error", err)
			} else {
				cover = "cover.jpg"
				result.CoverImage = path
				result.Files = append(result.Files, path)
			}
		}
	}

	md, err := ExportToMarkdown(p, cover)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Markdown: %w", err)
	}
	mdFile := filepath.Join(dir, "README.md")
	if err := os.WriteFile(mdFile, md, 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}
	result.Files = append(result.Files, mdFile)
	return result, nil
}
