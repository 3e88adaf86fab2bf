package note

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store handles SQLite operations for notes, content, tags, and
// notebooks. Methods that look up a missing record return (nil, nil)
// rather than an error; callers treat absence as a normal condition.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the note database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &Store{db: db, now: time.Now}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SetClock overrides the clock source. Intended for tests.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

func (s *Store) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS notes (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    headline TEXT NOT NULL DEFAULT '',
    content_id TEXT NOT NULL DEFAULT '',
    pinned INTEGER DEFAULT 0,
    locked INTEGER DEFAULT 0,
    readonly INTEGER DEFAULT 0,
    conflicted INTEGER DEFAULT 0,
    date_created INTEGER NOT NULL,
    date_edited INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notes_edited ON notes(date_edited DESC);
CREATE TABLE IF NOT EXISTS content (
    id TEXT PRIMARY KEY,
    note_id TEXT NOT NULL,
    type TEXT NOT NULL DEFAULT 'html',
    data TEXT NOT NULL DEFAULT '',
    locked INTEGER DEFAULT 0,
    date_edited INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_content_note ON content(note_id);
CREATE TABLE IF NOT EXISTS content_versions (
    note_id TEXT NOT NULL,
    session_id INTEGER NOT NULL,
    data TEXT NOT NULL,
    date_edited INTEGER NOT NULL,
    PRIMARY KEY (note_id, session_id)
);
CREATE TABLE IF NOT EXISTS tags (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS note_tags (
    note_id TEXT NOT NULL,
    tag_id TEXT NOT NULL,
    PRIMARY KEY (note_id, tag_id)
);
CREATE TABLE IF NOT EXISTS notebooks (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS notebook_notes (
    notebook_id TEXT NOT NULL,
    note_id TEXT NOT NULL,
    PRIMARY KEY (notebook_id, note_id)
);
CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
	_, err := s.db.Exec(schema)
	return err
}

// generateID creates an ID with the given prefix and 8 hex chars.
func generateID(prefix string) (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + "-" + hex.EncodeToString(b), nil
}

// Add creates or updates a note from a save payload and returns its id.
// Content saves also refresh the note headline and, when the payload
// carries a history session, upsert that session's version entry.
func (s *Store) Add(p SavePayload) (string, error) {
	now := s.now().UnixMilli()

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	id := p.ID
	if id == "" {
		id, err = generateID("note")
		if err != nil {
			return "", fmt.Errorf("generate note ID: %w", err)
		}
		_, err = tx.Exec(`
			INSERT INTO notes (id, date_created, date_edited) VALUES (?, ?, ?)
		`, id, now, now)
		if err != nil {
			return "", fmt.Errorf("insert note: %w", err)
		}
	}

	if p.HasTitle {
		if _, err := tx.Exec(`UPDATE notes SET title = ? WHERE id = ?`, p.Title, id); err != nil {
			return "", fmt.Errorf("update title: %w", err)
		}
	}

	if p.HasData {
		contentID, err := s.upsertContent(tx, id, p, now)
		if err != nil {
			return "", err
		}
		headline := ""
		if !p.Locked {
			headline = Headline(p.Data)
		}
		_, err = tx.Exec(`
			UPDATE notes SET content_id = ?, headline = ?, locked = ? WHERE id = ?
		`, contentID, headline, boolToInt(p.Locked), id)
		if err != nil {
			return "", fmt.Errorf("update note content ref: %w", err)
		}

		if p.SessionID > 0 && !p.Locked {
			_, err = tx.Exec(`
				INSERT INTO content_versions (note_id, session_id, data, date_edited)
				VALUES (?, ?, ?, ?)
				ON CONFLICT (note_id, session_id)
				DO UPDATE SET data = excluded.data, date_edited = excluded.date_edited
			`, id, p.SessionID, p.Data, now)
			if err != nil {
				return "", fmt.Errorf("upsert version: %w", err)
			}
		}
	}

	if _, err := tx.Exec(`UPDATE notes SET date_edited = ? WHERE id = ?`, now, id); err != nil {
		return "", fmt.Errorf("bump date_edited: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

func (s *Store) upsertContent(tx *sql.Tx, noteID string, p SavePayload, now int64) (string, error) {
	var contentID string
	err := tx.QueryRow(`SELECT content_id FROM notes WHERE id = ?`, noteID).Scan(&contentID)
	if err != nil {
		return "", fmt.Errorf("query content id: %w", err)
	}

	typ := p.Type
	if typ == "" {
		typ = ContentTypeHTML
	}

	if contentID == "" {
		contentID, err = generateID("cnt")
		if err != nil {
			return "", fmt.Errorf("generate content ID: %w", err)
		}
		_, err = tx.Exec(`
			INSERT INTO content (id, note_id, type, data, locked, date_edited)
			VALUES (?, ?, ?, ?, ?, ?)
		`, contentID, noteID, typ, p.Data, boolToInt(p.Locked), now)
	} else {
		_, err = tx.Exec(`
			UPDATE content SET type = ?, data = ?, locked = ?, date_edited = ? WHERE id = ?
		`, typ, p.Data, boolToInt(p.Locked), now, contentID)
	}
	if err != nil {
		return "", fmt.Errorf("write content: %w", err)
	}
	return contentID, nil
}

// Merge applies a synced note record, preserving the remote DateEdited
// so last-write-wins comparisons stay meaningful. A record older than
// the stored row is a stale echo and leaves the row untouched. Either
// argument may be nil for metadata-only or content-only merges.
func (s *Store) Merge(n *Note, c *Content) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if n != nil {
		_, err = tx.Exec(`
			INSERT INTO notes (id, title, headline, content_id, pinned, locked, readonly, conflicted, date_created, date_edited)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				title = excluded.title,
				headline = excluded.headline,
				pinned = excluded.pinned,
				locked = excluded.locked,
				readonly = excluded.readonly,
				conflicted = excluded.conflicted,
				date_edited = excluded.date_edited
			WHERE excluded.date_edited > notes.date_edited
		`, n.ID, n.Title, n.Headline, n.ContentID,
			boolToInt(n.Pinned), boolToInt(n.Locked), boolToInt(n.Readonly), boolToInt(n.Conflicted),
			n.DateCreated, n.DateEdited)
		if err != nil {
			return fmt.Errorf("merge note: %w", err)
		}
	}

	if c != nil {
		_, err = tx.Exec(`
			INSERT INTO content (id, note_id, type, data, locked, date_edited)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				data = excluded.data,
				type = excluded.type,
				locked = excluded.locked,
				date_edited = excluded.date_edited
			WHERE excluded.date_edited > content.date_edited
		`, c.ID, c.NoteID, c.Type, c.Data, boolToInt(c.Locked), c.DateEdited)
		if err != nil {
			return fmt.Errorf("merge content: %w", err)
		}
		_, err = tx.Exec(`
			UPDATE notes SET content_id = ?, date_edited = ? WHERE id = ? AND date_edited < ?
		`, c.ID, c.DateEdited, c.NoteID, c.DateEdited)
		if err != nil {
			return fmt.Errorf("merge content ref: %w", err)
		}
	}

	return tx.Commit()
}

// Note retrieves a note by id; (nil, nil) when missing.
func (s *Store) Note(id string) (*Note, error) {
	row := s.db.QueryRow(`
		SELECT id, title, headline, content_id, pinned, locked, readonly, conflicted, date_created, date_edited
		FROM notes WHERE id = ?
	`, id)
	return scanNote(row)
}

// List retrieves all notes ordered by pinned then most recently edited.
func (s *Store) List() ([]Note, error) {
	rows, err := s.db.Query(`
		SELECT id, title, headline, content_id, pinned, locked, readonly, conflicted, date_created, date_edited
		FROM notes ORDER BY pinned DESC, date_edited DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		n, err := scanNoteRows(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, *n)
	}
	return notes, rows.Err()
}

// RawContent retrieves a content record by content id; (nil, nil) when
// missing.
func (s *Store) RawContent(contentID string) (*Content, error) {
	var c Content
	var locked int
	err := s.db.QueryRow(`
		SELECT id, note_id, type, data, locked, date_edited FROM content WHERE id = ?
	`, contentID).Scan(&c.ID, &c.NoteID, &c.Type, &c.Data, &locked, &c.DateEdited)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query content: %w", err)
	}
	c.Locked = locked == 1
	return &c, nil
}

// ContentOf retrieves a note's content record; (nil, nil) when the note
// is missing or has no content yet.
func (s *Store) ContentOf(noteID string) (*Content, error) {
	var c Content
	var locked int
	err := s.db.QueryRow(`
		SELECT id, note_id, type, data, locked, date_edited FROM content WHERE note_id = ?
	`, noteID).Scan(&c.ID, &c.NoteID, &c.Type, &c.Data, &locked, &c.DateEdited)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query content: %w", err)
	}
	c.Locked = locked == 1
	return &c, nil
}

// Delete permanently removes a note with its content, versions, and
// relations.
func (s *Store) Delete(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM content WHERE note_id = ?`,
		`DELETE FROM content_versions WHERE note_id = ?`,
		`DELETE FROM note_tags WHERE note_id = ?`,
		`DELETE FROM notebook_notes WHERE note_id = ?`,
		`DELETE FROM notes WHERE id = ?`,
	} {
		if _, err := tx.Exec(stmt, id); err != nil {
			return fmt.Errorf("delete note: %w", err)
		}
	}
	return tx.Commit()
}

// Versions lists a note's content-history entries, oldest first.
func (s *Store) Versions(noteID string) ([]Version, error) {
	rows, err := s.db.Query(`
		SELECT note_id, session_id, data, date_edited FROM content_versions
		WHERE note_id = ? ORDER BY session_id ASC
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("query versions: %w", err)
	}
	defer rows.Close()

	var versions []Version
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.NoteID, &v.SessionID, &v.Data, &v.DateEdited); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// TagsOf lists a note's tag titles, sorted.
func (s *Store) TagsOf(noteID string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT t.title FROM tags t
		JOIN note_tags nt ON nt.tag_id = t.id
		WHERE nt.note_id = ? ORDER BY t.title
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, title)
	}
	return tags, rows.Err()
}

// LinkTag attaches a tag (created on demand) to a note.
func (s *Store) LinkTag(noteID, title string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var tagID string
	err = tx.QueryRow(`SELECT id FROM tags WHERE title = ?`, title).Scan(&tagID)
	if err == sql.ErrNoRows {
		tagID, err = generateID("tag")
		if err != nil {
			return fmt.Errorf("generate tag ID: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO tags (id, title) VALUES (?, ?)`, tagID, title); err != nil {
			return fmt.Errorf("insert tag: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("query tag: %w", err)
	}

	_, err = tx.Exec(`
		INSERT OR IGNORE INTO note_tags (note_id, tag_id) VALUES (?, ?)
	`, noteID, tagID)
	if err != nil {
		return fmt.Errorf("link tag: %w", err)
	}
	return tx.Commit()
}

// UnlinkTag detaches a tag from a note. Unknown tags are a no-op.
func (s *Store) UnlinkTag(noteID, title string) error {
	_, err := s.db.Exec(`
		DELETE FROM note_tags WHERE note_id = ? AND tag_id IN (SELECT id FROM tags WHERE title = ?)
	`, noteID, title)
	if err != nil {
		return fmt.Errorf("unlink tag: %w", err)
	}
	return nil
}

// defaultNotebookTitle is where first-save notes are filed when the
// default-notebook setting is on.
const defaultNotebookTitle = "Unfiled"

// AddToDefaultNotebook files a note into the default notebook, creating
// the notebook on first use.
func (s *Store) AddToDefaultNotebook(noteID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var nbID string
	err = tx.QueryRow(`SELECT id FROM notebooks WHERE title = ?`, defaultNotebookTitle).Scan(&nbID)
	if err == sql.ErrNoRows {
		nbID, err = generateID("nb")
		if err != nil {
			return fmt.Errorf("generate notebook ID: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO notebooks (id, title) VALUES (?, ?)`, nbID, defaultNotebookTitle); err != nil {
			return fmt.Errorf("insert notebook: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("query notebook: %w", err)
	}

	_, err = tx.Exec(`
		INSERT OR IGNORE INTO notebook_notes (notebook_id, note_id) VALUES (?, ?)
	`, nbID, noteID)
	if err != nil {
		return fmt.Errorf("file note: %w", err)
	}
	return tx.Commit()
}

// GetMeta reads a metadata value; empty string when unset.
func (s *Store) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query meta: %w", err)
	}
	return value, nil
}

// SetMeta writes a metadata value.
func (s *Store) SetMeta(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set meta: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row *sql.Row) (*Note, error) {
	n, err := scanNoteFrom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return n, err
}

func scanNoteRows(rows *sql.Rows) (*Note, error) {
	return scanNoteFrom(rows)
}

func scanNoteFrom(r rowScanner) (*Note, error) {
	var n Note
	var pinned, locked, readonly, conflicted int
	err := r.Scan(&n.ID, &n.Title, &n.Headline, &n.ContentID,
		&pinned, &locked, &readonly, &conflicted, &n.DateCreated, &n.DateEdited)
	if err != nil {
		return nil, err
	}
	n.Pinned = pinned == 1
	n.Locked = locked == 1
	n.Readonly = readonly == 1
	n.Conflicted = conflicted == 1
	return &n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
