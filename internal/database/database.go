package database

import (
	"database/sql"
	"fmt"
	"time"

	"cadenza/pkg/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Database wraps a *sql.DB providing higher-level helper methods for
// interacting with the application's persistent catalog. It is safe for
// concurrent use because the underlying *sql.DB is concurrency-safe.
type Database struct {
	conn   *sql.DB
	logger *logrus.Logger

	// Prepared statements for better performance
	insertTrackStmt     *sql.Stmt
	updateTrackStmt     *sql.Stmt
	getTrackByIDStmt    *sql.Stmt
	trackExistsStmt     *sql.Stmt
	removeTrackStmt     *sql.Stmt
	updatePlayStateStmt *sql.Stmt
	setFavoriteStmt     *sql.Stmt
	searchTracksStmt    *sql.Stmt
}

// NewDatabase opens (or creates) a SQLite database at the provided path and
// ensures all required tables and indices exist. It also applies lightweight
// performance-oriented pragmas (WAL, cache sizing). Caller should Close() it
// when finished.
func NewDatabase(dbPath string, logger *logrus.Logger) (*Database, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	conn, err := sql.Open("sqlite3", dbPath+"?cache=shared&mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool - adjusted for SQLite
	conn.SetMaxOpenConns(5) // SQLite works better with fewer connections
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(15 * time.Minute)

	// Enable WAL mode for better concurrency
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=2000;",
		"PRAGMA temp_store=memory;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA auto_vacuum=INCREMENTAL;",
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.WithError(err).WithField("pragma", pragma).Warn("Failed to set pragma")
		}
	}

	db := &Database{
		conn:   conn,
		logger: logger,
	}

	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := db.prepareStatements(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	logger.WithField("db_path", dbPath).Info("Database initialized successfully")
	return db, nil
}

// createTables creates tables and indices if they do not already exist, then
// executes any migrations. This is idempotent and safe to call multiple times.
func (db *Database) createTables() error {
	// Create tracks table
	tracksTable := `
	CREATE TABLE IF NOT EXISTS tracks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		artist TEXT NOT NULL,
		album TEXT NOT NULL,
		genre TEXT DEFAULT '',
		year INTEGER DEFAULT 0,
		track_number INTEGER DEFAULT 0,
		duration INTEGER DEFAULT 0,
		file_path TEXT NOT NULL UNIQUE,
		file_size INTEGER NOT NULL,
		play_count INTEGER DEFAULT 0,
		last_played DATETIME,
		date_added DATETIME DEFAULT CURRENT_TIMESTAMP,
		favorite BOOLEAN DEFAULT FALSE
	);`

	// Create folders table (watched music directories)
	foldersTable := `
	CREATE TABLE IF NOT EXISTS folders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		added_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	// Create playlists table; smart playlists store their rule set as JSON
	playlistsTable := `
	CREATE TABLE IF NOT EXISTS playlists (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		public_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'regular',
		criteria TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	// Create playlist_tracks junction table
	playlistTracksTable := `
	CREATE TABLE IF NOT EXISTS playlist_tracks (
		playlist_id INTEGER,
		track_id INTEGER,
		position INTEGER,
		added_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (playlist_id) REFERENCES playlists(id) ON DELETE CASCADE,
		FOREIGN KEY (track_id) REFERENCES tracks(id) ON DELETE CASCADE,
		PRIMARY KEY (playlist_id, track_id)
	);`

	// Create indices for better performance
	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_tracks_artist ON tracks(artist);",
		"CREATE INDEX IF NOT EXISTS idx_tracks_album ON tracks(album);",
		"CREATE INDEX IF NOT EXISTS idx_tracks_artist_album ON tracks(artist, album, track_number);",
		"CREATE INDEX IF NOT EXISTS idx_tracks_search ON tracks(title, artist, album);",
		"CREATE INDEX IF NOT EXISTS idx_tracks_file_path ON tracks(file_path);",
		"CREATE INDEX IF NOT EXISTS idx_tracks_play_count ON tracks(play_count);",
		"CREATE INDEX IF NOT EXISTS idx_tracks_last_played ON tracks(last_played);",
		"CREATE INDEX IF NOT EXISTS idx_playlist_tracks_playlist ON playlist_tracks(playlist_id);",
		"CREATE INDEX IF NOT EXISTS idx_playlist_tracks_position ON playlist_tracks(playlist_id, position);",
	}

	tables := []string{tracksTable, foldersTable, playlistsTable, playlistTracksTable}
	for _, table := range tables {
		if _, err := db.conn.Exec(table); err != nil {
			return err
		}
	}

	for _, index := range indices {
		if _, err := db.conn.Exec(index); err != nil {
			return err
		}
	}

	// Run migrations
	if err := db.runMigrations(); err != nil {
		return err
	}

	return nil
}

// runMigrations performs incremental schema updates in-place. Each migration
// should be idempotent and safe to re-run; keep them lightweight.
func (db *Database) runMigrations() error {
	// Migration 1: Add genre/year columns to tracks created before tag fields
	// beyond title/artist/album were recorded.
	for _, m := range []struct {
		column string
		ddl    string
	}{
		{"genre", "ALTER TABLE tracks ADD COLUMN genre TEXT DEFAULT ''"},
		{"year", "ALTER TABLE tracks ADD COLUMN year INTEGER DEFAULT 0"},
	} {
		var columnExists bool
		err := db.conn.QueryRow(`
			SELECT COUNT(*) > 0
			FROM pragma_table_info('tracks')
			WHERE name = ?`, m.column).Scan(&columnExists)
		if err != nil {
			return err
		}
		if !columnExists {
			if _, err := db.conn.Exec(m.ddl); err != nil {
				return err
			}
			db.logger.WithField("column", m.column).Info("Added column to tracks table")
		}
	}

	// Migration 2: Add criteria column to playlists created before smart
	// playlists existed.
	var criteriaExists bool
	err := db.conn.QueryRow(`
		SELECT COUNT(*) > 0
		FROM pragma_table_info('playlists')
		WHERE name = 'criteria'`).Scan(&criteriaExists)
	if err != nil {
		return err
	}
	if !criteriaExists {
		if _, err := db.conn.Exec("ALTER TABLE playlists ADD COLUMN criteria TEXT"); err != nil {
			return err
		}
		db.logger.Info("Added criteria column to playlists table")
	}

	return nil
}

// prepareStatements prepares commonly used SQL statements for better performance
func (db *Database) prepareStatements() error {
	var err error

	db.insertTrackStmt, err = db.conn.Prepare(`
		INSERT INTO tracks (title, artist, album, genre, year, track_number, duration, file_path, file_size, date_added)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert track statement: %w", err)
	}

	// Metadata-only update: play state and favorite flag are owned by the
	// play-state statements and must survive a rescan.
	db.updateTrackStmt, err = db.conn.Prepare(`
		UPDATE tracks SET title = ?, artist = ?, album = ?, genre = ?, year = ?, track_number = ?, duration = ?, file_size = ?
		WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare update track statement: %w", err)
	}

	db.getTrackByIDStmt, err = db.conn.Prepare(`
		SELECT id, title, artist, album, genre, year, track_number, duration, file_path, file_size, play_count, last_played, date_added, favorite
		FROM tracks WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare get track by ID statement: %w", err)
	}

	db.trackExistsStmt, err = db.conn.Prepare(`
		SELECT COUNT(*) FROM tracks WHERE file_path = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare track exists statement: %w", err)
	}

	db.removeTrackStmt, err = db.conn.Prepare(`
		DELETE FROM tracks WHERE file_path = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare remove track statement: %w", err)
	}

	db.updatePlayStateStmt, err = db.conn.Prepare(`
		UPDATE tracks SET play_count = ?, last_played = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare update play state statement: %w", err)
	}

	db.setFavoriteStmt, err = db.conn.Prepare(`
		UPDATE tracks SET favorite = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare set favorite statement: %w", err)
	}

	db.searchTracksStmt, err = db.conn.Prepare(`
		SELECT id, title, artist, album, genre, year, track_number, duration, file_path, file_size, play_count, last_played, date_added, favorite
		FROM tracks
		WHERE title LIKE ? OR artist LIKE ? OR album LIKE ?
		ORDER BY artist, album, track_number, title`)
	if err != nil {
		return fmt.Errorf("failed to prepare search tracks statement: %w", err)
	}

	return nil
}

// InsertTrack inserts a new track or updates an existing track (matched by
// file_path) returning the track's database ID. Updates touch only tag
// metadata; play count, last played and favorite are preserved.
func (db *Database) InsertTrack(track models.Track) (int, error) {
	// Check if track already exists
	var existingID int
	err := db.conn.QueryRow("SELECT id FROM tracks WHERE file_path = ?", track.FilePath).Scan(&existingID)
	if err == nil {
		_, err = db.updateTrackStmt.Exec(
			track.Title, track.Artist, track.Album, track.Genre, track.Year,
			track.TrackNumber, track.Duration, track.FileSize,
			existingID)
		if err != nil {
			db.logger.WithError(err).WithField("track_id", existingID).Error("Failed to update existing track")
		}
		return existingID, err
	}

	dateAdded := track.DateAdded
	if dateAdded.IsZero() {
		dateAdded = time.Now()
	}

	result, err := db.insertTrackStmt.Exec(
		track.Title, track.Artist, track.Album, track.Genre, track.Year,
		track.TrackNumber, track.Duration, track.FilePath, track.FileSize, dateAdded)
	if err != nil {
		db.logger.WithError(err).WithField("file_path", track.FilePath).Error("Failed to insert new track")
		return 0, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		db.logger.WithError(err).Error("Failed to get last insert ID")
		return 0, err
	}

	return int(id), nil
}

// GetAllTracks returns all tracks ordered by artist/album/track/title.
func (db *Database) GetAllTracks() ([]models.Track, error) {
	rows, err := db.conn.Query(`
		SELECT id, title, artist, album, genre, year, track_number, duration, file_path, file_size, play_count, last_played, date_added, favorite
		FROM tracks
		ORDER BY artist, album, track_number, title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrackRows(rows)
}

// GetTracksInFolder returns all tracks whose file path lives under the given
// folder, ordered by artist/album/track/title.
func (db *Database) GetTracksInFolder(folderPath string) ([]models.Track, error) {
	rows, err := db.conn.Query(`
		SELECT id, title, artist, album, genre, year, track_number, duration, file_path, file_size, play_count, last_played, date_added, favorite
		FROM tracks
		WHERE file_path LIKE ? || '%'
		ORDER BY artist, album, track_number, title`, folderPath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrackRows(rows)
}

// GetTrackByID returns a single track by its ID.
func (db *Database) GetTrackByID(id int) (*models.Track, error) {
	row := db.getTrackByIDStmt.QueryRow(id)
	track, err := scanTrackRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("track with ID %d not found", id)
		}
		db.logger.WithError(err).WithField("track_id", id).Error("Failed to get track by ID")
		return nil, err
	}
	return track, nil
}

// UpdatePlayState persists a track's play count and last-played timestamp.
func (db *Database) UpdatePlayState(id, playCount int, lastPlayed time.Time) error {
	var last interface{}
	if !lastPlayed.IsZero() {
		last = lastPlayed
	}
	_, err := db.updatePlayStateStmt.Exec(playCount, last, id)
	if err != nil {
		db.logger.WithError(err).WithField("track_id", id).Error("Failed to update play state")
	}
	return err
}

// SetFavorite persists a track's favorite flag.
func (db *Database) SetFavorite(id int, favorite bool) error {
	_, err := db.setFavoriteStmt.Exec(favorite, id)
	if err != nil {
		db.logger.WithError(err).WithField("track_id", id).Error("Failed to set favorite flag")
	}
	return err
}

// SearchTracks performs a simple LIKE-based search over title, artist and album.
func (db *Database) SearchTracks(query string) ([]models.Track, error) {
	searchQuery := "%" + query + "%"
	rows, err := db.searchTracksStmt.Query(searchQuery, searchQuery, searchQuery)
	if err != nil {
		db.logger.WithError(err).WithField("query", query).Error("Failed to search tracks")
		return nil, err
	}
	defer rows.Close()
	return scanTrackRows(rows)
}

// RemoveTrackByPath deletes a track row identified by its file path.
func (db *Database) RemoveTrackByPath(filePath string) error {
	_, err := db.removeTrackStmt.Exec(filePath)
	if err != nil {
		db.logger.WithError(err).WithField("file_path", filePath).Error("Failed to remove track by path")
	}
	return err
}

// TrackExists returns true if a track exists with the given file path.
func (db *Database) TrackExists(filePath string) (bool, error) {
	var count int
	err := db.trackExistsStmt.QueryRow(filePath).Scan(&count)
	if err != nil {
		db.logger.WithError(err).WithField("file_path", filePath).Error("Failed to check if track exists")
		return false, err
	}
	return count > 0, nil
}

// AddFolder registers a watched folder, returning its ID. Adding an already
// registered path returns the existing row's ID.
func (db *Database) AddFolder(path string) (int, error) {
	var existingID int
	err := db.conn.QueryRow("SELECT id FROM folders WHERE path = ?", path).Scan(&existingID)
	if err == nil {
		return existingID, nil
	}

	result, err := db.conn.Exec("INSERT INTO folders (path) VALUES (?)", path)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	return int(id), err
}

// GetFolders returns all watched folders.
func (db *Database) GetFolders() ([]models.Folder, error) {
	rows, err := db.conn.Query("SELECT id, path, added_at FROM folders ORDER BY added_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var folders []models.Folder
	for rows.Next() {
		var folder models.Folder
		if err := rows.Scan(&folder.ID, &folder.Path, &folder.AddedAt); err != nil {
			return nil, err
		}
		folders = append(folders, folder)
	}
	return folders, rows.Err()
}

// RemoveFolder deletes a watched folder row.
func (db *Database) RemoveFolder(id int) error {
	_, err := db.conn.Exec("DELETE FROM folders WHERE id = ?", id)
	return err
}

// CreatePlaylist inserts a new playlist and returns its ID. Smart playlists
// pass their JSON-encoded criteria; regular playlists pass an empty string.
func (db *Database) CreatePlaylist(publicID, name string, kind models.PlaylistKind, criteria string) (int, error) {
	var crit interface{}
	if criteria != "" {
		crit = criteria
	}
	result, err := db.conn.Exec(`
		INSERT INTO playlists (public_id, name, kind, criteria)
		VALUES (?, ?, ?, ?)`, publicID, name, string(kind), crit)
	if err != nil {
		return 0, err
	}

	id, err := result.LastInsertId()
	return int(id), err
}

// GetAllPlaylists returns all playlists along with derived track counts.
// Smart playlist counts reflect only persisted rows and are recomputed by the
// playlist manager after materialization.
func (db *Database) GetAllPlaylists() ([]models.Playlist, error) {
	rows, err := db.conn.Query(`
		SELECT p.id, p.public_id, p.name, p.kind, p.criteria, p.created_at,
			   COALESCE(COUNT(pt.track_id), 0) as track_count
		FROM playlists p
		LEFT JOIN playlist_tracks pt ON p.id = pt.playlist_id
		GROUP BY p.id, p.public_id, p.name, p.kind, p.criteria, p.created_at
		ORDER BY p.created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var playlists []models.Playlist
	for rows.Next() {
		var playlist models.Playlist
		var kind string
		var criteria sql.NullString
		err := rows.Scan(&playlist.ID, &playlist.PublicID, &playlist.Name, &kind,
			&criteria, &playlist.CreatedAt, &playlist.TrackCount)
		if err != nil {
			return nil, err
		}
		playlist.Kind = models.PlaylistKind(kind)
		if criteria.Valid {
			playlist.Criteria = criteria.String
		}
		playlists = append(playlists, playlist)
	}

	return playlists, rows.Err()
}

// GetPlaylistTracks returns tracks for a playlist ordered by stored position.
func (db *Database) GetPlaylistTracks(playlistID int) ([]models.Track, error) {
	rows, err := db.conn.Query(`
		SELECT t.id, t.title, t.artist, t.album, t.genre, t.year, t.track_number, t.duration, t.file_path, t.file_size, t.play_count, t.last_played, t.date_added, t.favorite
		FROM tracks t
		JOIN playlist_tracks pt ON t.id = pt.track_id
		WHERE pt.playlist_id = ?
		ORDER BY pt.position`, playlistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrackRows(rows)
}

// AddTrackToPlaylist appends a track to the end of a playlist (if not already present).
func (db *Database) AddTrackToPlaylist(playlistID, trackID int) error {
	// Get the next position
	var maxPosition sql.NullInt64
	err := db.conn.QueryRow(`
		SELECT MAX(position) FROM playlist_tracks WHERE playlist_id = ?`,
		playlistID).Scan(&maxPosition)

	if err != nil && err != sql.ErrNoRows {
		return err
	}

	position := 1
	if maxPosition.Valid {
		position = int(maxPosition.Int64) + 1
	}

	_, err = db.conn.Exec(`
		INSERT INTO playlist_tracks (playlist_id, track_id, position)
		VALUES (?, ?, ?)
		ON CONFLICT(playlist_id, track_id) DO NOTHING`,
		playlistID, trackID, position)

	return err
}

// RemoveTrackFromPlaylist removes a specific track from the given playlist.
func (db *Database) RemoveTrackFromPlaylist(playlistID, trackID int) error {
	_, err := db.conn.Exec(`
		DELETE FROM playlist_tracks
		WHERE playlist_id = ? AND track_id = ?`,
		playlistID, trackID)

	return err
}

// SetPlaylistTracks replaces a playlist's membership with the given track IDs
// in order. Used to persist reorders in one shot.
func (db *Database) SetPlaylistTracks(playlistID int, trackIDs []int) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM playlist_tracks WHERE playlist_id = ?", playlistID); err != nil {
		return err
	}
	for i, trackID := range trackIDs {
		if _, err := tx.Exec(`
			INSERT INTO playlist_tracks (playlist_id, track_id, position)
			VALUES (?, ?, ?)`, playlistID, trackID, i+1); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// DeletePlaylist deletes the playlist and any playlist_tracks entries referencing it.
func (db *Database) DeletePlaylist(playlistID int) error {
	_, err := db.conn.Exec("DELETE FROM playlists WHERE id = ?", playlistID)
	return err
}

// UpdatePlaylist updates playlist metadata (name and, for smart playlists,
// the encoded criteria).
func (db *Database) UpdatePlaylist(playlistID int, name, criteria string) error {
	var crit interface{}
	if criteria != "" {
		crit = criteria
	}
	_, err := db.conn.Exec(`
		UPDATE playlists
		SET name = ?, criteria = ?
		WHERE id = ?`,
		name, crit, playlistID)
	return err
}

// Close closes the underlying database connection and prepared statements.
func (db *Database) Close() error {
	// Close prepared statements
	statements := []*sql.Stmt{
		db.insertTrackStmt,
		db.updateTrackStmt,
		db.getTrackByIDStmt,
		db.trackExistsStmt,
		db.removeTrackStmt,
		db.updatePlayStateStmt,
		db.setFavoriteStmt,
		db.searchTracksStmt,
	}

	for _, stmt := range statements {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				db.logger.WithError(err).Error("Failed to close prepared statement")
			}
		}
	}

	// Close database connection
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for track scanning.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanTrackRow scans a single standard track row.
func scanTrackRow(row rowScanner) (*models.Track, error) {
	var track models.Track
	var lastPlayed sql.NullTime

	if err := row.Scan(&track.ID, &track.Title, &track.Artist, &track.Album,
		&track.Genre, &track.Year, &track.TrackNumber, &track.Duration,
		&track.FilePath, &track.FileSize, &track.PlayCount, &lastPlayed,
		&track.DateAdded, &track.Favorite); err != nil {
		return nil, err
	}
	if lastPlayed.Valid {
		track.LastPlayed = lastPlayed.Time
	}
	return &track, nil
}

// scanTrackRows scans standard track result sets into a slice of models.Track.
// It centralizes row iteration logic to reduce duplication across query
// helpers. Callers must have already deferred rows.Close().
func scanTrackRows(rows *sql.Rows) ([]models.Track, error) {
	var tracks []models.Track
	for rows.Next() {
		track, err := scanTrackRow(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, *track)
	}
	return tracks, rows.Err()
}
