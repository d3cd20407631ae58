package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLite implements Store on a local file database. It backs local
// development and the test suite; production uses Postgres.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// sqliteTime is a fixed-width UTC timestamp layout so stored values order
// lexicographically and SQL comparisons stay correct.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

// OpenSQLite opens (or creates) the database at path, ensures the data
// directory exists, and runs schema migrations.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL for concurrent read/write access, busy_timeout so writers wait
	// instead of failing with SQLITE_BUSY, synchronous=NORMAL is safe under
	// WAL and skips an fsync per transaction.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
	`); err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &SQLite{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS blog_posts (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    slug TEXT NOT NULL UNIQUE,
    excerpt TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL,
    published_at TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS resources (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    file_path TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS subscribers (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    subscribed_at TEXT NOT NULL,
    confirmed INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS site_settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`)
	return err
}

func isSQLiteUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(sqliteTime)
}

func encodeTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return encodeTime(*t)
}

func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTime, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode timestamp %q: %w", s, err)
	}
	return t, nil
}

const sqlitePostColumns = `id, title, slug, excerpt, content, published_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLitePost(row rowScanner) (BlogPost, error) {
	var (
		p                    BlogPost
		id                   string
		published            sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&id, &p.Title, &p.Slug, &p.Excerpt, &p.Content, &published, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return BlogPost{}, ErrNotFound
	}
	if err != nil {
		return BlogPost{}, err
	}
	if p.ID, err = uuid.Parse(id); err != nil {
		return BlogPost{}, err
	}
	if published.Valid {
		t, err := decodeTime(published.String)
		if err != nil {
			return BlogPost{}, err
		}
		p.PublishedAt = &t
	}
	if p.CreatedAt, err = decodeTime(createdAt); err != nil {
		return BlogPost{}, err
	}
	if p.UpdatedAt, err = decodeTime(updatedAt); err != nil {
		return BlogPost{}, err
	}
	return p, nil
}

func (s *SQLite) collectPosts(rows *sql.Rows) ([]BlogPost, error) {
	defer rows.Close()
	var posts []BlogPost
	for rows.Next() {
		p, err := scanSQLitePost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (s *SQLite) CreatePost(ctx context.Context, p *BlogPost) error {
	taken, err := s.slugTaken(ctx, p.Slug, uuid.Nil)
	if err != nil {
		return err
	}
	if taken {
		return ErrDuplicateSlug
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO blog_posts (id, title, slug, excerpt, content, published_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.Title, p.Slug, p.Excerpt, p.Content,
		encodeTimePtr(p.PublishedAt), encodeTime(p.CreatedAt), encodeTime(p.UpdatedAt))
	if isSQLiteUniqueViolation(err) {
		return ErrDuplicateSlug
	}
	return err
}

func (s *SQLite) UpdatePost(ctx context.Context, p *BlogPost) error {
	taken, err := s.slugTaken(ctx, p.Slug, p.ID)
	if err != nil {
		return err
	}
	if taken {
		return ErrDuplicateSlug
	}

	p.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE blog_posts
		SET title = ?, slug = ?, excerpt = ?, content = ?, published_at = ?, updated_at = ?
		WHERE id = ?`,
		p.Title, p.Slug, p.Excerpt, p.Content,
		encodeTimePtr(p.PublishedAt), encodeTime(p.UpdatedAt), p.ID.String())
	if isSQLiteUniqueViolation(err) {
		return ErrDuplicateSlug
	}
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (s *SQLite) slugTaken(ctx context.Context, slug string, excludeID uuid.UUID) (bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM blog_posts WHERE slug = ? AND id <> ?`, slug, excludeID.String()).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) DeletePost(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM blog_posts WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (s *SQLite) GetPostByID(ctx context.Context, id uuid.UUID) (BlogPost, error) {
	return scanSQLitePost(s.db.QueryRowContext(ctx,
		`SELECT `+sqlitePostColumns+` FROM blog_posts WHERE id = ?`, id.String()))
}

func (s *SQLite) GetPostBySlug(ctx context.Context, slug string) (BlogPost, error) {
	return scanSQLitePost(s.db.QueryRowContext(ctx,
		`SELECT `+sqlitePostColumns+` FROM blog_posts WHERE slug = ?`, slug))
}

func (s *SQLite) ListPublishedPosts(ctx context.Context) ([]BlogPost, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqlitePostColumns+` FROM blog_posts
		WHERE published_at IS NOT NULL AND published_at <= ?
		ORDER BY published_at DESC`, encodeTime(time.Now()))
	if err != nil {
		return nil, err
	}
	return s.collectPosts(rows)
}

func (s *SQLite) ListAllPosts(ctx context.Context) ([]BlogPost, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqlitePostColumns+` FROM blog_posts ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return s.collectPosts(rows)
}

func (s *SQLite) RelatedPosts(ctx context.Context, currentID uuid.UUID, limit int) ([]BlogPost, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqlitePostColumns+` FROM blog_posts
		WHERE published_at IS NOT NULL AND published_at <= ? AND id <> ?
		ORDER BY published_at DESC
		LIMIT ?`, encodeTime(time.Now()), currentID.String(), limit)
	if err != nil {
		return nil, err
	}
	return s.collectPosts(rows)
}

func (s *SQLite) CreateResource(ctx context.Context, r *Resource) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resources (id, title, description, file_path, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.ID.String(), r.Title, r.Description, r.FilePath, encodeTime(r.CreatedAt))
	return err
}

func (s *SQLite) UpdateResource(ctx context.Context, r *Resource) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE resources SET title = ?, description = ?, file_path = ? WHERE id = ?`,
		r.Title, r.Description, r.FilePath, r.ID.String())
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (s *SQLite) DeleteResource(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (s *SQLite) GetResource(ctx context.Context, id uuid.UUID) (Resource, error) {
	var (
		r         Resource
		rid       string
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, file_path, created_at FROM resources WHERE id = ?`,
		id.String()).Scan(&rid, &r.Title, &r.Description, &r.FilePath, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Resource{}, ErrNotFound
	}
	if err != nil {
		return Resource{}, err
	}
	if r.ID, err = uuid.Parse(rid); err != nil {
		return Resource{}, err
	}
	if r.CreatedAt, err = decodeTime(createdAt); err != nil {
		return Resource{}, err
	}
	return r, nil
}

func (s *SQLite) ListResources(ctx context.Context) ([]Resource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, file_path, created_at
		FROM resources ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Resource
	for rows.Next() {
		var (
			r         Resource
			rid       string
			createdAt string
		)
		if err := rows.Scan(&rid, &r.Title, &r.Description, &r.FilePath, &createdAt); err != nil {
			return nil, err
		}
		if r.ID, err = uuid.Parse(rid); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = decodeTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) CreateSubscriber(ctx context.Context, email string) (Subscriber, error) {
	sub := Subscriber{
		ID:           uuid.New(),
		Email:        email,
		SubscribedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscribers (id, email, subscribed_at, confirmed)
		VALUES (?, ?, ?, 0)`,
		sub.ID.String(), sub.Email, encodeTime(sub.SubscribedAt))
	if isSQLiteUniqueViolation(err) {
		return Subscriber{}, ErrEmailTaken
	}
	if err != nil {
		return Subscriber{}, err
	}
	return sub, nil
}

func (s *SQLite) ListSubscribers(ctx context.Context) ([]Subscriber, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, subscribed_at, confirmed
		FROM subscribers ORDER BY subscribed_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Subscriber
	for rows.Next() {
		var (
			sub          Subscriber
			sid          string
			subscribedAt string
			confirmed    int
		)
		if err := rows.Scan(&sid, &sub.Email, &subscribedAt, &confirmed); err != nil {
			return nil, err
		}
		if sub.ID, err = uuid.Parse(sid); err != nil {
			return nil, err
		}
		if sub.SubscribedAt, err = decodeTime(subscribedAt); err != nil {
			return nil, err
		}
		sub.Confirmed = confirmed == 1
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *SQLite) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM site_settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *SQLite) AllSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM site_settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *SQLite) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO site_settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, encodeTime(time.Now()))
	return err
}
