package library

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// StartWatcher initializes an fsnotify watcher for recursive monitoring of
// every watched folder.
func (l *Library) StartWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	l.watcher = watcher

	// Start monitoring in a goroutine
	go l.watchFiles()

	// Add every watched folder to the watcher
	for _, folder := range l.Folders() {
		if err := l.addDirectoryToWatcher(folder.Path); err != nil {
			l.logger.WithError(err).WithField("folder", folder.Path).Warn("Could not watch folder")
		}
	}

	l.logger.Info("File watcher started")
	return nil
}

// addDirectoryToWatcher recursively walks and adds subdirectories to watcher.
func (l *Library) addDirectoryToWatcher(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return l.watcher.Add(path)
		}
		return nil
	})
}

// watchFiles selects on watcher channels and dispatches events.
func (l *Library) watchFiles() {
	defer l.watcher.Close()

	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			l.handleFileEvent(event)

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.WithError(err).Error("File watcher error")
		}
	}
}

// handleFileEvent applies filtering & delegates creation/removal actions.
func (l *Library) handleFileEvent(event fsnotify.Event) {
	// Ignore temporary files and hidden files
	fileName := filepath.Base(event.Name)
	if strings.HasPrefix(fileName, ".") || strings.HasSuffix(fileName, ".tmp") {
		return
	}

	isAudioFile := l.extractor.IsAudioFile(event.Name)

	switch {
	case event.Has(fsnotify.Create) && isAudioFile:
		// Dispatch new file processing asynchronously
		go func(name string) {
			time.Sleep(500 * time.Millisecond) // Ensure file is fully written
			l.handleNewFile(name)
		}(event.Name)

	case event.Has(fsnotify.Remove) && isAudioFile:
		// Dispatch removal processing asynchronously
		go l.handleRemovedFile(event.Name)

	case event.Has(fsnotify.Create):
		// Check if it's a new directory
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			l.watcher.Add(event.Name)
			l.logger.WithField("directory", event.Name).Info("Watching new directory")
		}
	}
}

// handleNewFile extracts metadata & inserts new track if unseen.
func (l *Library) handleNewFile(filePath string) {
	l.logger.WithField("file_path", filePath).Info("New audio file detected")

	// Check if file already exists in database
	exists, err := l.db.TrackExists(filePath)
	if err != nil {
		l.logger.WithError(err).WithField("file_path", filePath).Error("Error checking if track exists")
		return
	}
	if exists {
		l.logger.WithField("file_path", filePath).Debug("Track already exists in database")
		return
	}

	// Extract metadata and add to database
	track, err := l.extractor.ExtractFromFile(filePath, 0)
	if err != nil {
		l.logger.WithError(err).WithField("file_path", filePath).Error("Error extracting metadata")
		return
	}

	id, err := l.db.InsertTrack(track)
	if err != nil {
		l.logger.WithError(err).Error("Error inserting new track into database")
		return
	}

	track.ID = id
	if track.DateAdded.IsZero() {
		track.DateAdded = time.Now()
	}
	l.addTrack(track)

	l.logger.WithFields(logrus.Fields{
		"artist": track.Artist,
		"title":  track.Title,
		"album":  track.Album,
		"id":     id,
	}).Info("Added new track")
}

// handleRemovedFile removes track rows referencing deleted audio files.
func (l *Library) handleRemovedFile(filePath string) {
	l.logger.WithField("file_path", filePath).Info("Audio file removed")

	err := l.db.RemoveTrackByPath(filePath)
	if err != nil {
		l.logger.WithError(err).WithField("file_path", filePath).Error("Error removing track from database")
		return
	}

	l.removeTrackByPath(filePath)
	l.logger.WithField("file_path", filePath).Info("Removed track from database")
}

// stopWatcher closes the watcher (idempotent).
func (l *Library) stopWatcher() {
	if l.watcher != nil {
		l.watcher.Close()
	}
}
