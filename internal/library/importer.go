package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"musicmanager/internal/logger"
	"musicmanager/internal/metadata"
	"musicmanager/pkg/utils"
)

// ImportResult counts what happened to each audio file of an import.
type ImportResult struct {
	Imported int
	Skipped  int
	Failed   int
}

// Importer copies audio files into the music library and indexes them.
type Importer struct {
	Store      *Store
	Logger     *logger.Logger
	LibraryDir string
	CacheDir   string
	// Organize places files under Artist/Album instead of the library root.
	Organize bool
	// OnProgress is called after each file, whatever its outcome, with the
	// number of files handled so far and the total.
	OnProgress func(done, total int)

	readTags func(string) (metadata.MusicID3, error)
	subDir   func(string) string
}

// NewImporter creates an Importer writing into libraryDir and staging
// files in cacheDir.
func NewImporter(store *Store, libraryDir, cacheDir string, log *logger.Logger) *Importer {
	return &Importer{
		Store:      store,
		Logger:     log,
		LibraryDir: libraryDir,
		CacheDir:   cacheDir,
		readTags:   metadata.ReadID3,
		subDir:     metadata.SubDirFromTags,
	}
}

// Import imports path, which is either one audio file or a directory
// searched recursively. A single file that is already in the library
// returns ErrFileExists; inside a directory such files are skipped.
func (i *Importer) Import(ctx context.Context, path string) (ImportResult, error) {
	var res ImportResult

	info, err := os.Stat(path)
	if err != nil {
		return res, fmt.Errorf("import path does not exist: %s", path)
	}

	if info.Mode().IsRegular() {
		if _, err := i.ImportFile(ctx, path); err != nil {
			return res, err
		}
		res.Imported++
		i.progress(1, 1)
		return res, nil
	}
	if !info.IsDir() {
		return res, fmt.Errorf("unsupported file type: %s", path)
	}

	files, err := utils.FindAudioFiles(path)
	if err != nil {
		return res, fmt.Errorf("failed to find audio files: %w", err)
	}
	i.Logger.Info("Importing %d files from %s", len(files), path)

	for n, f := range files {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("import cancelled: %w", err)
		}

		_, err := i.ImportFile(ctx, f)
		switch {
		case err == nil:
			res.Imported++
		case errors.Is(err, ErrFileExists):
			i.Logger.Warn("Skipping %s: %v", f, err)
			res.Skipped++
		default:
			i.Logger.Error("Failed to import %s: %v", f, err)
			res.Failed++
		}
		i.progress(n+1, len(files))
	}

	i.Logger.Info("Import finished: %d imported, %d skipped, %d failed", res.Imported, res.Skipped, res.Failed)
	return res, nil
}

func (i *Importer) progress(done, total int) {
	if i.OnProgress != nil {
		i.OnProgress(done, total)
	}
}

// ImportFile stages src in the cache, reads its tags, moves it into the
// library and records it. The source file is left in place.
func (i *Importer) ImportFile(ctx context.Context, src string) (metadata.MusicID3, error) {
	name := filepath.Base(src)
	cached := filepath.Join(i.CacheDir, name)

	if err := utils.CopyFile(src, cached); err != nil {
		return metadata.MusicID3{}, fmt.Errorf("failed to stage %s: %w", src, err)
	}
	// Removes the staged copy unless it was moved into the library.
	defer os.Remove(cached)

	dst := filepath.Join(i.LibraryDir, name)
	if i.Organize && i.subDir != nil {
		if sub := i.subDir(cached); sub != "" {
			dst = filepath.Join(i.LibraryDir, sub, name)
		}
	}
	if utils.Exists(dst) {
		return metadata.MusicID3{}, fmt.Errorf("%w: %s", ErrFileExists, dst)
	}

	m, err := i.readTags(cached)
	if err != nil {
		return metadata.MusicID3{}, fmt.Errorf("failed to read tags: %w", err)
	}

	if err := utils.MoveFile(cached, dst); err != nil {
		return metadata.MusicID3{}, err
	}
	m.FileFullPath = dst
	m.Filename = name

	if err := i.Store.SaveMusic(ctx, &m); err != nil {
		return metadata.MusicID3{}, err
	}
	if err := i.Store.addMappings(ctx, m); err != nil {
		return metadata.MusicID3{}, err
	}

	i.Logger.Debug("Imported %s -> %s", src, dst)
	return m, nil
}
