package metadata

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.senan.xyz/taglib"
)

// Tag keys taglib does not export constants for.
const (
	tagLyrics      = "LYRICS"
	tagComment     = "COMMENT"
	tagLanguage    = "LANGUAGE"
	tagReleaseType = "RELEASETYPE"
)

// ReadID3 reads tags, stream properties and embedded artwork from an audio file.
func ReadID3(path string) (MusicID3, error) {
	info, err := os.Stat(path)
	if err != nil {
		return MusicID3{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	tags, err := taglib.ReadTags(path)
	if err != nil {
		return MusicID3{}, fmt.Errorf("failed to read tags from %s: %w", path, err)
	}

	m := MusicID3{
		FileFullPath: path,
		Filename:     filepath.Base(path),
		Size:         info.Size(),
		Title:        firstTag(tags, taglib.Title),
		Artist:       firstTag(tags, taglib.Artist),
		Lyrics:       firstTag(tags, tagLyrics),
		Year:         leadingInt(firstTag(tags, taglib.Date)),
		Comment:      firstTag(tags, tagComment),
		Genre:        firstTag(tags, taglib.Genre),
		TrackNumber:  leadingInt(firstTag(tags, taglib.TrackNumber)),
		DiscNumber:   leadingInt(firstTag(tags, taglib.DiscNumber)),
		Album:        firstTag(tags, taglib.Album),
		AlbumType:    firstTag(tags, tagReleaseType),
		AlbumArtist:  firstTag(tags, taglib.AlbumArtist),
		Language:     firstTag(tags, tagLanguage),
	}

	props, err := taglib.ReadProperties(path)
	if err != nil {
		return MusicID3{}, fmt.Errorf("failed to read properties from %s: %w", path, err)
	}
	m.Duration = props.Length.Seconds()
	m.BitRate = int(props.Bitrate)

	// Missing artwork is not an error.
	if img, err := taglib.ReadImage(path); err == nil && len(img) > 0 {
		m.Artwork, m.ArtworkSize = artworkDataURI(img)
	}

	return m, nil
}

// Save writes the non-empty fields of m back to m.FileFullPath.
func (m MusicID3) Save() error {
	if m.FileFullPath == "" {
		return fmt.Errorf("file_full_path cannot be empty")
	}

	tags := make(map[string][]string)
	set := func(key, value string) {
		if value != "" {
			tags[key] = []string{value}
		}
	}
	set(taglib.Title, m.Title)
	set(taglib.Artist, m.Artist)
	set(taglib.Album, m.Album)
	set(taglib.AlbumArtist, m.AlbumArtist)
	set(taglib.Genre, m.Genre)
	set(tagComment, m.Comment)
	set(tagLyrics, m.Lyrics)
	set(tagReleaseType, m.AlbumType)
	set(tagLanguage, m.Language)
	if m.Year > 0 {
		tags[taglib.Date] = []string{strconv.Itoa(m.Year)}
	}
	if m.TrackNumber > 0 {
		tags[taglib.TrackNumber] = []string{strconv.Itoa(m.TrackNumber)}
	}
	if m.DiscNumber > 0 {
		tags[taglib.DiscNumber] = []string{strconv.Itoa(m.DiscNumber)}
	}

	if err := taglib.WriteTags(m.FileFullPath, tags, 0); err != nil {
		return fmt.Errorf("failed to write tags to %s: %w", m.FileFullPath, err)
	}

	if m.Artwork != "" {
		img, err := decodeDataURI(m.Artwork)
		if err != nil {
			return fmt.Errorf("invalid artwork for %s: %w", m.FileFullPath, err)
		}
		if err := WriteArtwork(m.FileFullPath, img); err != nil {
			return err
		}
	}
	return nil
}

// WriteArtwork embeds artwork image data into an audio file.
func WriteArtwork(path string, imageData []byte) error {
	if len(imageData) == 0 {
		return nil
	}
	if err := taglib.WriteImage(path, imageData); err != nil {
		return fmt.Errorf("failed to write artwork to %s: %w", path, err)
	}
	return nil
}

func artworkDataURI(img []byte) (string, int) {
	encoded := base64.StdEncoding.EncodeToString(img)
	mime := http.DetectContentType(img)
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + encoded, len(encoded)
}

func decodeDataURI(uri string) ([]byte, error) {
	payload := uri
	if strings.HasPrefix(uri, "data:") {
		i := strings.Index(uri, ";base64,")
		if i < 0 {
			return nil, fmt.Errorf("artwork data URI is not base64")
		}
		payload = uri[i+len(";base64,"):]
	}
	return base64.StdEncoding.DecodeString(payload)
}

func firstTag(tags map[string][]string, key string) string {
	if vals := tags[key]; len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

// leadingInt parses "2021-08-17" as 2021 and "3/12" as 3.
func leadingInt(s string) int {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, _ := strconv.Atoi(s[:end])
	return n
}

// SubDirFromTags returns an "Artist/Album" subdirectory for organizing a file
// in the library. Returns "" if tags can't be read.
func SubDirFromTags(path string) string {
	tags, err := taglib.ReadTags(path)
	if err != nil {
		return ""
	}

	artist := firstTag(tags, taglib.AlbumArtist)
	if artist == "" {
		artist = firstTag(tags, taglib.Artist)
		if i := strings.Index(artist, ","); i > 0 {
			artist = strings.TrimSpace(artist[:i])
		}
	}
	album := firstTag(tags, taglib.Album)

	if artist == "" {
		artist = "Unknown Artist"
	}
	if album == "" {
		album = "Unknown Album"
	}

	return filepath.Join(sanitizePath(artist), sanitizePath(album))
}

// sanitizePath removes or replaces characters that are problematic in file paths.
func sanitizePath(s string) string {
	s = strings.TrimSpace(s)
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return replacer.Replace(s)
}
