package metadata

import (
	"path/filepath"
	"strings"
)

// MusicID3 is the editable metadata of one audio file, as exchanged with the
// web frontend and stored in the library table.
type MusicID3 struct {
	// File
	FileFullPath string `json:"file_full_path"`
	Filename     string `json:"filename"`
	Size         int64  `json:"size"`

	// Library
	ID   int64  `json:"id,omitempty"`
	UUID string `json:"uuid,omitempty"`

	Title   string `json:"title"`
	Artist  string `json:"artist"`
	Lyrics  string `json:"lyrics"`
	Year    int    `json:"year"`
	Comment string `json:"comment"`
	Genre   string `json:"genre"`

	TrackNumber int    `json:"tracknumber"`
	DiscNumber  int    `json:"discnumber"`
	Album       string `json:"album"`
	AlbumType   string `json:"album_type"`
	AlbumArtist string `json:"albumartist"`

	// Stream
	Duration float64 `json:"duration"`
	BitRate  int     `json:"bit_rate"`

	// Artwork is a data URI; ArtworkSize is the length of its base64 payload.
	Artwork     string `json:"artwork"`
	ArtworkSize int    `json:"artwork_size"`

	Language string `json:"language"`
}

// SearchQuery represents a cleaned-up query for searching music platforms.
type SearchQuery struct {
	Title  string
	Artist string
}

// Keyword joins artist and title into one free-text search string.
func (q SearchQuery) Keyword() string {
	return strings.TrimSpace(q.Artist + " " + q.Title)
}

var audioExtensions = map[string]bool{
	".flac": true,
	".mp3":  true,
	".wav":  true,
}

// IsAudio reports whether path has an extension the tag editor accepts.
func IsAudio(path string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsSidecar reports whether path is a text or lyric file that carries no tags.
func IsSidecar(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".lrc":
		return true
	}
	return false
}
