package library

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"cadenza/pkg/models"
)

// Scan walks every watched folder and adds supported audio files to the
// catalog using a worker pool. Tracks already present are refreshed in place;
// play state survives a rescan.
func (l *Library) Scan() error {
	if !l.cfg.ScanOnStartup {
		l.logger.Info("Skipping library scan (disabled in config)")
		return nil
	}

	var wg sync.WaitGroup
	var trackCount int64
	jobs := make(chan string, 100)

	// Start worker pool
	numWorkers := runtime.NumCPU()
	for i := 0; i < numWorkers; i++ {
		go func() {
			for path := range jobs {
				track, err := l.extractor.ExtractFromFile(path, 0)
				if err != nil {
					l.logger.WithError(err).WithField("file_path", path).Error("Error extracting metadata")
					wg.Done()
					continue
				}
				id, err := l.db.InsertTrack(track)
				if err != nil {
					l.logger.WithError(err).Error("Error inserting track into database")
				} else {
					// Re-read the row so refreshed tracks keep their play state.
					if stored, err := l.db.GetTrackByID(id); err == nil {
						l.addTrack(*stored)
					}
					atomic.AddInt64(&trackCount, 1)
				}
				wg.Done()
			}
		}()
	}

	// Walk each watched folder and enqueue jobs
	var walkErr error
	for _, folder := range l.Folders() {
		l.logger.WithField("folder", folder.Path).Info("Scanning music folder")
		err := filepath.Walk(folder.Path, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if l.extractor.IsAudioFile(path) {
				wg.Add(1)
				jobs <- path
			}
			return nil
		})
		if err != nil && walkErr == nil {
			walkErr = err
		}
	}

	// Close jobs channel and wait for all workers
	close(jobs)
	wg.Wait()

	l.logger.WithField("tracks", atomic.LoadInt64(&trackCount)).Info("Library scan complete")
	return walkErr
}

// sortTracks orders tracks by artist/album/track number/title, matching the
// catalog's natural browse order.
func sortTracks(tracks []models.Track) {
	sort.SliceStable(tracks, func(i, j int) bool {
		a, b := tracks[i], tracks[j]
		if a.Artist != b.Artist {
			return strings.ToLower(a.Artist) < strings.ToLower(b.Artist)
		}
		if a.Album != b.Album {
			return strings.ToLower(a.Album) < strings.ToLower(b.Album)
		}
		if a.TrackNumber != b.TrackNumber {
			return a.TrackNumber < b.TrackNumber
		}
		return strings.ToLower(a.Title) < strings.ToLower(b.Title)
	})
}

// hasPathPrefix reports whether path lives under dir.
func hasPathPrefix(path, dir string) bool {
	dir = strings.TrimSuffix(dir, string(os.PathSeparator))
	if path == dir {
		return false
	}
	return strings.HasPrefix(path, dir+string(os.PathSeparator)) || strings.HasPrefix(path, dir+"/")
}
