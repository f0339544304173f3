// Package sqlite is the transactional store backend on an embedded SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"ragcorpus/internal/domain"
	"ragcorpus/internal/store"
	"ragcorpus/internal/store/sqlite/migrations"
)

var _ domain.Store = (*Store)(nil)

// Store keeps sources, fragments and collections in one database file.
// Writers are serialized by wmu so each mutation runs as the only write
// transaction; readers run concurrently on WAL snapshots.
type Store struct {
	db   *sql.DB
	path string
	wmu  sync.Mutex
}

// Open opens (or creates) the database at path and applies migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	slog.Debug("SQLite store opened", "path", path)
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}
	return nil
}

// write runs fn in a transaction, committing only if fn succeeds.
func (s *Store) write(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// read runs fn in a transaction so multi-query reads see one snapshot.
func (s *Store) read(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(tx)
}

// ==================== Sources ====================

func (s *Store) PutSource(ctx context.Context, src domain.Source, fragments []domain.Fragment) error {
	if err := src.Validate(); err != nil {
		return err
	}
	if err := store.CheckFragments(src.ID, fragments); err != nil {
		return err
	}
	return s.write(ctx, func(tx *sql.Tx) error {
		for _, cid := range src.CollectionIDs {
			if err := collectionExists(ctx, tx, cid); err != nil {
				return err
			}
		}
		for _, f := range fragments {
			if err := fragmentAbsent(ctx, tx, f.ID); err != nil {
				return err
			}
		}

		var filePath, mimeType, ext, url, host sql.NullString
		if d := src.Document; d != nil {
			filePath, mimeType, ext = nullString(d.FilePath), nullString(d.MimeType), nullString(d.Ext)
		}
		if w := src.Website; w != nil {
			url, host = nullString(w.URL), nullString(w.Domain)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sources (id, name, kind, size, uploaded_at, chunk_count, file_path, mime_type, ext, url, domain)
			VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				kind = excluded.kind,
				size = excluded.size,
				uploaded_at = excluded.uploaded_at,
				file_path = excluded.file_path,
				mime_type = excluded.mime_type,
				ext = excluded.ext,
				url = excluded.url,
				domain = excluded.domain
		`, src.ID, src.Name, string(src.Kind), src.Size, formatTime(src.UploadedAt),
			filePath, mimeType, ext, url, host)
		if err != nil {
			return fmt.Errorf("saving source: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM source_collections WHERE source_id = ?`, src.ID); err != nil {
			return fmt.Errorf("clearing membership: %w", err)
		}
		for i, cid := range store.Dedupe(src.CollectionIDs) {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO source_collections (source_id, collection_id, position) VALUES (?, ?, ?)`,
				src.ID, cid, i); err != nil {
				return fmt.Errorf("saving membership: %w", err)
			}
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO fragments (id, source_id, content, embedding, domain) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing fragment insert: %w", err)
		}
		defer stmt.Close()
		for _, f := range fragments {
			if _, err := stmt.ExecContext(ctx, f.ID, f.SourceID, f.Content, encodeFloat32s(f.Embedding), nullString(f.Domain)); err != nil {
				return fmt.Errorf("saving fragment %s: %w", f.ID, err)
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE sources SET chunk_count = (SELECT COUNT(*) FROM fragments WHERE source_id = ?)
			WHERE id = ?
		`, src.ID, src.ID)
		if err != nil {
			return fmt.Errorf("updating chunk count: %w", err)
		}
		return nil
	})
}

const sourceColumns = `id, name, kind, size, uploaded_at, chunk_count, file_path, mime_type, ext, url, domain`

func (s *Store) ListSources(ctx context.Context) ([]domain.Source, error) {
	var out []domain.Source
	err := s.read(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY rowid`)
		if err != nil {
			return fmt.Errorf("listing sources: %w", err)
		}
		defer rows.Close()

		out = []domain.Source{}
		for rows.Next() {
			src, err := scanSource(rows)
			if err != nil {
				return err
			}
			out = append(out, src)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		members, err := memberships(ctx, tx, "")
		if err != nil {
			return err
		}
		for i := range out {
			if ids, ok := members[out[i].ID]; ok {
				out[i].CollectionIDs = ids
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) GetSource(ctx context.Context, id string) (domain.Source, error) {
	var src domain.Source
	err := s.read(ctx, func(tx *sql.Tx) error {
		var err error
		src, err = getSource(ctx, tx, id)
		if err != nil {
			return err
		}
		members, err := memberships(ctx, tx, id)
		if err != nil {
			return err
		}
		if ids, ok := members[id]; ok {
			src.CollectionIDs = ids
		}
		return nil
	})
	return src, err
}

func getSource(ctx context.Context, tx *sql.Tx, id string) (domain.Source, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Source{}, domain.NotFound(domain.EntitySource, id)
	}
	return src, err
}

// DeleteSource removes the source, its fragments and its memberships.
func (s *Store) DeleteSource(ctx context.Context, id string) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("deleting source: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.NotFound(domain.EntitySource, id)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM fragments WHERE source_id = ?`, id); err != nil {
			return fmt.Errorf("deleting fragments: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM source_collections WHERE source_id = ?`, id); err != nil {
			return fmt.Errorf("deleting membership: %w", err)
		}
		return nil
	})
}

// ==================== Collections ====================

func (s *Store) ListCollections(ctx context.Context) ([]domain.Collection, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM collections ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	defer rows.Close()

	out := []domain.Collection{}
	for rows.Next() {
		var c domain.Collection
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scanning collection: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetCollection(ctx context.Context, id string) (domain.Collection, error) {
	var c domain.Collection
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM collections WHERE id = ?`, id).Scan(&c.ID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return c, domain.NotFound(domain.EntityCollection, id)
	}
	if err != nil {
		return c, fmt.Errorf("getting collection: %w", err)
	}
	return c, nil
}

func (s *Store) CreateCollection(ctx context.Context, c domain.Collection) error {
	c, err := store.CheckCollection(c)
	if err != nil {
		return err
	}
	return s.write(ctx, func(tx *sql.Tx) error {
		if err := collectionExists(ctx, tx, c.ID); err == nil {
			return domain.AlreadyExistsf("collection id %q", c.ID)
		}
		if taken, err := nameTaken(ctx, tx, c.Name, ""); err != nil {
			return err
		} else if taken {
			return domain.AlreadyExistsf("collection name %q", c.Name)
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO collections (id, name, name_key) VALUES (?, ?, ?)`,
			c.ID, c.Name, store.NameKey(c.Name))
		if err != nil {
			return fmt.Errorf("creating collection: %w", err)
		}
		return nil
	})
}

func (s *Store) RenameCollection(ctx context.Context, id, name string) (domain.Collection, error) {
	name, err := store.CheckName(name)
	if err != nil {
		return domain.Collection{}, err
	}
	err = s.write(ctx, func(tx *sql.Tx) error {
		if err := collectionExists(ctx, tx, id); err != nil {
			return err
		}
		if taken, err := nameTaken(ctx, tx, name, id); err != nil {
			return err
		} else if taken {
			return domain.AlreadyExistsf("collection name %q", name)
		}
		_, err := tx.ExecContext(ctx, `UPDATE collections SET name = ?, name_key = ? WHERE id = ?`,
			name, store.NameKey(name), id)
		if err != nil {
			return fmt.Errorf("renaming collection: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Collection{}, err
	}
	return domain.Collection{ID: id, Name: name}, nil
}

// DeleteCollection removes the collection and every membership in it.
func (s *Store) DeleteCollection(ctx context.Context, id string) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("deleting collection: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.NotFound(domain.EntityCollection, id)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM source_collections WHERE collection_id = ?`, id); err != nil {
			return fmt.Errorf("deleting membership: %w", err)
		}
		return nil
	})
}

func (s *Store) AssignCollection(ctx context.Context, sourceID, collectionID string) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		if err := checkPair(ctx, tx, sourceID, collectionID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO source_collections (source_id, collection_id, position)
			SELECT ?, ?, COALESCE(MAX(position), -1) + 1 FROM source_collections WHERE source_id = ?
			ON CONFLICT(source_id, collection_id) DO NOTHING
		`, sourceID, collectionID, sourceID)
		if err != nil {
			return fmt.Errorf("assigning collection: %w", err)
		}
		return nil
	})
}

func (s *Store) UnassignCollection(ctx context.Context, sourceID, collectionID string) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		if err := checkPair(ctx, tx, sourceID, collectionID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM source_collections WHERE source_id = ? AND collection_id = ?`, sourceID, collectionID)
		if err != nil {
			return fmt.Errorf("unassigning collection: %w", err)
		}
		return nil
	})
}

// ==================== Fragments ====================

// Fragments joins on sources so orphans are never returned.
func (s *Store) Fragments(ctx context.Context, filter domain.FragmentFilter) ([]domain.Fragment, error) {
	if filter.SourceIDs != nil && len(filter.SourceIDs) == 0 {
		return []domain.Fragment{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.source_id, f.content, f.embedding, f.domain
		FROM fragments f JOIN sources s ON s.id = f.source_id
		ORDER BY f.seq
	`)
	if err != nil {
		return nil, fmt.Errorf("listing fragments: %w", err)
	}
	defer rows.Close()

	m := store.NewMatcher(filter)
	out := []domain.Fragment{}
	for rows.Next() {
		var (
			f    domain.Fragment
			emb  []byte
			host sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.SourceID, &f.Content, &emb, &host); err != nil {
			return nil, fmt.Errorf("scanning fragment: %w", err)
		}
		f.Domain = host.String
		if !m.Match(f) {
			continue
		}
		f.Embedding = decodeFloat32s(emb)
		out = append(out, f)
	}
	return out, rows.Err()
}

// ==================== Helpers ====================

type scanner interface {
	Scan(dest ...any) error
}

func scanSource(row scanner) (domain.Source, error) {
	var (
		src                               domain.Source
		kind, uploaded                    string
		filePath, mimeType, ext, url, dom sql.NullString
	)
	err := row.Scan(&src.ID, &src.Name, &kind, &src.Size, &uploaded, &src.ChunkCount,
		&filePath, &mimeType, &ext, &url, &dom)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return src, err
		}
		return src, fmt.Errorf("scanning source: %w", err)
	}
	src.Kind = domain.SourceKind(kind)
	src.UploadedAt, err = time.Parse(time.RFC3339Nano, uploaded)
	if err != nil {
		return src, fmt.Errorf("parsing uploaded_at of %s: %w", src.ID, err)
	}
	src.CollectionIDs = []string{}
	switch src.Kind {
	case domain.KindWebsite:
		src.Website = &domain.WebsitePayload{URL: url.String, Domain: dom.String}
	default:
		src.Document = &domain.DocumentPayload{FilePath: filePath.String, MimeType: mimeType.String, Ext: ext.String}
	}
	return src, nil
}

// memberships returns collection ids per source in assignment order. An
// empty sourceID loads every source.
func memberships(ctx context.Context, tx *sql.Tx, sourceID string) (map[string][]string, error) {
	q := `SELECT source_id, collection_id FROM source_collections`
	var args []any
	if sourceID != "" {
		q += ` WHERE source_id = ?`
		args = append(args, sourceID)
	}
	q += ` ORDER BY source_id, position`

	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("loading membership: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var sid, cid string
		if err := rows.Scan(&sid, &cid); err != nil {
			return nil, fmt.Errorf("scanning membership: %w", err)
		}
		out[sid] = append(out[sid], cid)
	}
	return out, rows.Err()
}

func collectionExists(ctx context.Context, tx *sql.Tx, id string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM collections WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFound(domain.EntityCollection, id)
	}
	if err != nil {
		return fmt.Errorf("checking collection: %w", err)
	}
	return nil
}

func fragmentAbsent(ctx context.Context, tx *sql.Tx, id string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM fragments WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking fragment: %w", err)
	}
	return domain.AlreadyExistsf("fragment id %q", id)
}

func checkPair(ctx context.Context, tx *sql.Tx, sourceID, collectionID string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM sources WHERE id = ?`, sourceID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFound(domain.EntitySource, sourceID)
	}
	if err != nil {
		return fmt.Errorf("checking source: %w", err)
	}
	return collectionExists(ctx, tx, collectionID)
}

func nameTaken(ctx context.Context, tx *sql.Tx, name, exceptID string) (bool, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM collections WHERE name_key = ?`, store.NameKey(name)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking collection name: %w", err)
	}
	return id != exceptID, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// encodeFloat32s packs a vector as little-endian float32 bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeFloat32s(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
