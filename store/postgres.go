package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements Store against the hosted Postgres backend.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// OpenPostgres connects with service-level credentials and ensures the
// schema exists. Admin handlers and the JSON API run on this store.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	s, err := openPostgres(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		s.pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

// OpenPostgresRestricted connects with anonymous credentials for public page
// reads. It never touches the schema; the role is read-mostly and may only
// insert subscribers.
func OpenPostgresRestricted(ctx context.Context, dsn string) (*Postgres, error) {
	return openPostgres(ctx, dsn)
}

func openPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func (s *Postgres) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS blog_posts (
    id UUID PRIMARY KEY,
    title TEXT NOT NULL,
    slug TEXT NOT NULL UNIQUE,
    excerpt TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL,
    published_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS resources (
    id UUID PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    file_path TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS subscribers (
    id UUID PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    subscribed_at TIMESTAMPTZ NOT NULL,
    confirmed BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE TABLE IF NOT EXISTS site_settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);
`)
	return err
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const postColumns = `id, title, slug, excerpt, content, published_at, created_at, updated_at`

func scanPost(row pgx.Row) (BlogPost, error) {
	var p BlogPost
	err := row.Scan(&p.ID, &p.Title, &p.Slug, &p.Excerpt, &p.Content, &p.PublishedAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return BlogPost{}, ErrNotFound
	}
	if err != nil {
		return BlogPost{}, err
	}
	return p, nil
}

func collectPosts(rows pgx.Rows) ([]BlogPost, error) {
	defer rows.Close()
	var posts []BlogPost
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// CreatePost persists a new post with a fresh id and server-assigned
// timestamps. A taken slug yields ErrDuplicateSlug.
func (s *Postgres) CreatePost(ctx context.Context, p *BlogPost) error {
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

	_, err = s.pool.Exec(ctx, `
		INSERT INTO blog_posts (id, title, slug, excerpt, content, published_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.Title, p.Slug, p.Excerpt, p.Content, p.PublishedAt, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		// Lost the race between the pre-check and the insert.
		return ErrDuplicateSlug
	}
	return err
}

// UpdatePost rewrites an existing post. The slug-uniqueness check excludes
// the post's own id.
func (s *Postgres) UpdatePost(ctx context.Context, p *BlogPost) error {
	taken, err := s.slugTaken(ctx, p.Slug, p.ID)
	if err != nil {
		return err
	}
	if taken {
		return ErrDuplicateSlug
	}

	p.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE blog_posts
		SET title = $2, slug = $3, excerpt = $4, content = $5, published_at = $6, updated_at = $7
		WHERE id = $1`,
		p.ID, p.Title, p.Slug, p.Excerpt, p.Content, p.PublishedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateSlug
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) slugTaken(ctx context.Context, slug string, excludeID uuid.UUID) (bool, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM blog_posts WHERE slug = $1 AND id <> $2`, slug, excludeID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Postgres) DeletePost(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM blog_posts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) GetPostByID(ctx context.Context, id uuid.UUID) (BlogPost, error) {
	return scanPost(s.pool.QueryRow(ctx,
		`SELECT `+postColumns+` FROM blog_posts WHERE id = $1`, id))
}

func (s *Postgres) GetPostBySlug(ctx context.Context, slug string) (BlogPost, error) {
	return scanPost(s.pool.QueryRow(ctx,
		`SELECT `+postColumns+` FROM blog_posts WHERE slug = $1`, slug))
}

// ListPublishedPosts returns publicly visible posts, newest first.
func (s *Postgres) ListPublishedPosts(ctx context.Context) ([]BlogPost, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+postColumns+` FROM blog_posts
		WHERE published_at IS NOT NULL AND published_at <= now()
		ORDER BY published_at DESC`)
	if err != nil {
		return nil, err
	}
	return collectPosts(rows)
}

// ListAllPosts returns every post including drafts, newest created first.
func (s *Postgres) ListAllPosts(ctx context.Context) ([]BlogPost, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+postColumns+` FROM blog_posts ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return collectPosts(rows)
}

// RelatedPosts returns up to limit other published posts, newest first. The
// current post is never part of the result.
func (s *Postgres) RelatedPosts(ctx context.Context, currentID uuid.UUID, limit int) ([]BlogPost, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+postColumns+` FROM blog_posts
		WHERE published_at IS NOT NULL AND published_at <= now() AND id <> $1
		ORDER BY published_at DESC
		LIMIT $2`, currentID, limit)
	if err != nil {
		return nil, err
	}
	return collectPosts(rows)
}

func (s *Postgres) CreateResource(ctx context.Context, r *Resource) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.CreatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO resources (id, title, description, file_path, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.Title, r.Description, r.FilePath, r.CreatedAt)
	return err
}

func (s *Postgres) UpdateResource(ctx context.Context, r *Resource) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE resources SET title = $2, description = $3, file_path = $4 WHERE id = $1`,
		r.ID, r.Title, r.Description, r.FilePath)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) DeleteResource(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM resources WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) GetResource(ctx context.Context, id uuid.UUID) (Resource, error) {
	var r Resource
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, description, file_path, created_at FROM resources WHERE id = $1`, id).
		Scan(&r.ID, &r.Title, &r.Description, &r.FilePath, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Resource{}, ErrNotFound
	}
	if err != nil {
		return Resource{}, err
	}
	return r, nil
}

func (s *Postgres) ListResources(ctx context.Context) ([]Resource, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, description, file_path, created_at
		FROM resources ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Resource
	for rows.Next() {
		var r Resource
		if err := rows.Scan(&r.ID, &r.Title, &r.Description, &r.FilePath, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateSubscriber inserts a signup. A duplicate email yields ErrEmailTaken
// and leaves the table unchanged.
func (s *Postgres) CreateSubscriber(ctx context.Context, email string) (Subscriber, error) {
	sub := Subscriber{
		ID:           uuid.New(),
		Email:        email,
		SubscribedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscribers (id, email, subscribed_at, confirmed)
		VALUES ($1, $2, $3, $4)`,
		sub.ID, sub.Email, sub.SubscribedAt, sub.Confirmed)
	if isUniqueViolation(err) {
		return Subscriber{}, ErrEmailTaken
	}
	if err != nil {
		return Subscriber{}, err
	}
	return sub, nil
}

func (s *Postgres) ListSubscribers(ctx context.Context) ([]Subscriber, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, email, subscribed_at, confirmed
		FROM subscribers ORDER BY subscribed_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Subscriber
	for rows.Next() {
		var sub Subscriber
		if err := rows.Scan(&sub.ID, &sub.Email, &sub.SubscribedAt, &sub.Confirmed); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Postgres) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM site_settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *Postgres) AllSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM site_settings`)
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

func (s *Postgres) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO site_settings (key, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	return err
}
