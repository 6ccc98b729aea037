package library

import (
	"context"
	"fmt"

	"musicmanager/internal/logger"
	"musicmanager/internal/metadata"
	"musicmanager/pkg/utils"
)

// ScanResult summarizes one pass of the indexer.
type ScanResult struct {
	Indexed int
	Failed  int
	Removed int
}

// Indexer rebuilds the library table from the files on disk.
type Indexer struct {
	store      *Store
	log        *logger.Logger
	libraryDir string
	readTags   func(string) (metadata.MusicID3, error)
}

func NewIndexer(store *Store, libraryDir string, log *logger.Logger) *Indexer {
	return &Indexer{
		store:      store,
		log:        log,
		libraryDir: libraryDir,
		readTags:   metadata.ReadID3,
	}
}

// Scan walks the library, upserts a row for every audio file and drops
// rows whose file is gone. progress, if non-nil, receives the number of
// files handled so far and the total.
func (ix *Indexer) Scan(ctx context.Context, progress func(done, total int)) (ScanResult, error) {
	var res ScanResult

	files, err := utils.FindAudioFiles(ix.libraryDir)
	if err != nil {
		return res, fmt.Errorf("failed to list library: %w", err)
	}
	ix.log.Info("Indexing %d files in %s", len(files), ix.libraryDir)

	for n, path := range files {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("scan cancelled: %w", err)
		}

		if err := ix.indexFile(ctx, path); err != nil {
			ix.log.Warn("Failed to index %s: %v", path, err)
			res.Failed++
		} else {
			res.Indexed++
		}
		if progress != nil {
			progress(n+1, len(files))
		}
	}

	paths, err := ix.store.MusicPaths(ctx)
	if err != nil {
		return res, err
	}
	for _, p := range paths {
		if utils.Exists(p) {
			continue
		}
		if err := ix.store.DeleteMusic(ctx, p); err != nil {
			return res, err
		}
		ix.log.Debug("Removed missing file %s", p)
		res.Removed++
	}

	ix.log.Info("Index finished: %d indexed, %d failed, %d removed", res.Indexed, res.Failed, res.Removed)
	return res, nil
}

func (ix *Indexer) indexFile(ctx context.Context, path string) error {
	m, err := ix.readTags(path)
	if err != nil {
		return err
	}
	if err := ix.store.SaveMusic(ctx, &m); err != nil {
		return err
	}
	return ix.store.addMappings(ctx, m)
}
