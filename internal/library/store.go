package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"musicmanager/internal/metadata"
)

// MappingType is the kind of MusicBrainz entity a mapping row names.
type MappingType string

const (
	MappingArtist    MappingType = "artist"
	MappingAlbum     MappingType = "album"
	MappingRecording MappingType = "recording"
)

// Mapping links a name seen in the library to a MusicBrainz id. UUID and
// Value stay empty until the name is resolved.
type Mapping struct {
	ID         int64
	Type       MappingType
	Name       string
	UUID       string
	Value      string
	UpdateTime time.Time
}

// Store reads and writes library rows.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const musicColumns = `uuid, file_full_path, filename, size, title, artist, lyrics, year,
	comment, genre, tracknumber, discnumber, album, album_type, albumartist,
	duration, bit_rate, artwork, artwork_size, language`

// SaveMusic inserts m, or updates the row with the same file_full_path.
// m.ID and m.UUID are filled in from the stored row.
func (s *Store) SaveMusic(ctx context.Context, m *metadata.MusicID3) error {
	if m.FileFullPath == "" {
		return fmt.Errorf("file path is required")
	}
	if m.UUID == "" {
		m.UUID = uuid.NewString()
	}

	query := `INSERT INTO music_table (` + musicColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_full_path) DO UPDATE SET
			filename = excluded.filename,
			size = excluded.size,
			title = excluded.title,
			artist = excluded.artist,
			lyrics = excluded.lyrics,
			year = excluded.year,
			comment = excluded.comment,
			genre = excluded.genre,
			tracknumber = excluded.tracknumber,
			discnumber = excluded.discnumber,
			album = excluded.album,
			album_type = excluded.album_type,
			albumartist = excluded.albumartist,
			duration = excluded.duration,
			bit_rate = excluded.bit_rate,
			artwork = excluded.artwork,
			artwork_size = excluded.artwork_size,
			language = excluded.language`

	_, err := s.db.ExecContext(ctx, query,
		m.UUID, m.FileFullPath, m.Filename, m.Size, m.Title, m.Artist, m.Lyrics, m.Year,
		m.Comment, m.Genre, m.TrackNumber, m.DiscNumber, m.Album, m.AlbumType, m.AlbumArtist,
		m.Duration, m.BitRate, m.Artwork, m.ArtworkSize, m.Language,
	)
	if err != nil {
		return fmt.Errorf("failed to save music %s: %w", m.FileFullPath, err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT id, uuid FROM music_table WHERE file_full_path = ?`, m.FileFullPath,
	).Scan(&m.ID, &m.UUID)
	if err != nil {
		return fmt.Errorf("failed to read back music %s: %w", m.FileFullPath, err)
	}
	return nil
}

// MusicByPath returns the row for path, or ErrNotFound.
func (s *Store) MusicByPath(ctx context.Context, path string) (metadata.MusicID3, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, `+musicColumns+` FROM music_table WHERE file_full_path = ?`, path)

	var m metadata.MusicID3
	err := row.Scan(&m.ID,
		&m.UUID, &m.FileFullPath, &m.Filename, &m.Size, &m.Title, &m.Artist, &m.Lyrics, &m.Year,
		&m.Comment, &m.Genre, &m.TrackNumber, &m.DiscNumber, &m.Album, &m.AlbumType, &m.AlbumArtist,
		&m.Duration, &m.BitRate, &m.Artwork, &m.ArtworkSize, &m.Language,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return metadata.MusicID3{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return metadata.MusicID3{}, fmt.Errorf("failed to get music %s: %w", path, err)
	}
	return m, nil
}

// DeleteMusic removes the row for path. Missing rows are not an error.
func (s *Store) DeleteMusic(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM music_table WHERE file_full_path = ?`, path); err != nil {
		return fmt.Errorf("failed to delete music %s: %w", path, err)
	}
	return nil
}

// MusicPaths lists every indexed file path.
func (s *Store) MusicPaths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT file_full_path FROM music_table ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list music: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan music path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// CountMusic returns the number of indexed files.
func (s *Store) CountMusic(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM music_table`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count music: %w", err)
	}
	return n, nil
}

// AddMapping records name under typ. Re-adding an existing name only
// refreshes its update time. Empty names are ignored.
func (s *Store) AddMapping(ctx context.Context, typ MappingType, name string) error {
	if name == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO music_brain_z_mapping (type, name, update_time) VALUES (?, ?, ?)
		ON CONFLICT(type, name) DO UPDATE SET update_time = excluded.update_time`,
		string(typ), name, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to add %s mapping %q: %w", typ, name, err)
	}
	return nil
}

// Mappings lists the mappings of one type, oldest first.
func (s *Store) Mappings(ctx context.Context, typ MappingType) ([]Mapping, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, name, uuid, value, update_time
		FROM music_brain_z_mapping WHERE type = ? ORDER BY id`, string(typ))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s mappings: %w", typ, err)
	}
	defer rows.Close()

	var out []Mapping
	for rows.Next() {
		var (
			m          Mapping
			t          string
			uid, value sql.NullString
		)
		if err := rows.Scan(&m.ID, &t, &m.Name, &uid, &value, &m.UpdateTime); err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}
		m.Type = MappingType(t)
		m.UUID = uid.String
		m.Value = value.String
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) addMappings(ctx context.Context, m metadata.MusicID3) error {
	// Artist, album, recording: rows are inserted in this order.
	for _, e := range []struct {
		typ  MappingType
		name string
	}{
		{MappingArtist, m.Artist},
		{MappingAlbum, m.Album},
		{MappingRecording, m.Title},
	} {
		if err := s.AddMapping(ctx, e.typ, e.name); err != nil {
			return err
		}
	}
	return nil
}
