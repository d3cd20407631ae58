// Package store is the persistence gateway for the site: blog posts,
// downloadable resources, newsletter subscribers, and editable site copy.
//
// Two implementations exist. Postgres talks to the hosted backend and is
// what production runs against; SQLite keeps local development and tests
// self-contained. Both map constraint violations onto the sentinel errors
// below so callers can branch on outcome instead of parsing driver text.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateSlug is returned when a post slug is already taken.
	ErrDuplicateSlug = errors.New("a post with this slug already exists")

	// ErrEmailTaken is returned when a subscriber email is already on file.
	ErrEmailTaken = errors.New("email is already subscribed")
)

// BlogPost is a blog entry. A nil or future PublishedAt means the post is a
// draft and invisible to the public.
type BlogPost struct {
	ID          uuid.UUID
	Title       string
	Slug        string
	Excerpt     string
	Content     string
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PublishedBy reports whether the post is visible to the public at t.
func (p BlogPost) PublishedBy(t time.Time) bool {
	return p.PublishedAt != nil && !p.PublishedAt.After(t)
}

// Published reports whether the post is visible to the public now.
func (p BlogPost) Published() bool {
	return p.PublishedBy(time.Now())
}

// Resource is a downloadable file. FilePath is the object-storage key; the
// bytes themselves live in the storage backend, not here.
type Resource struct {
	ID          uuid.UUID
	Title       string
	Description string
	FilePath    string
	CreatedAt   time.Time
}

// Subscriber is a newsletter signup. Confirmed defaults to false; no flow in
// this codebase flips it.
type Subscriber struct {
	ID           uuid.UUID
	Email        string
	SubscribedAt time.Time
	Confirmed    bool
}

// SiteSetting is one editable piece of site copy, keyed by a name from the
// fixed registry in the root package.
type SiteSetting struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// Store is the persistence gateway contract. Every method takes a context
// and returns an error the caller must branch on; implementations never
// panic past this boundary.
type Store interface {
	// Posts. CreatePost and UpdatePost assign server-side timestamps and
	// return ErrDuplicateSlug when the slug is taken (UpdatePost excludes
	// the post's own id from that check). DeletePost returns ErrNotFound
	// for an absent id but deleting twice is otherwise harmless.
	CreatePost(ctx context.Context, p *BlogPost) error
	UpdatePost(ctx context.Context, p *BlogPost) error
	DeletePost(ctx context.Context, id uuid.UUID) error
	GetPostByID(ctx context.Context, id uuid.UUID) (BlogPost, error)
	GetPostBySlug(ctx context.Context, slug string) (BlogPost, error)
	ListPublishedPosts(ctx context.Context) ([]BlogPost, error)
	ListAllPosts(ctx context.Context) ([]BlogPost, error)
	RelatedPosts(ctx context.Context, currentID uuid.UUID, limit int) ([]BlogPost, error)

	// Resources, newest first.
	CreateResource(ctx context.Context, r *Resource) error
	UpdateResource(ctx context.Context, r *Resource) error
	DeleteResource(ctx context.Context, id uuid.UUID) error
	GetResource(ctx context.Context, id uuid.UUID) (Resource, error)
	ListResources(ctx context.Context) ([]Resource, error)

	// Subscribers. CreateSubscriber returns ErrEmailTaken on a duplicate
	// email and never inserts a second row for it.
	CreateSubscriber(ctx context.Context, email string) (Subscriber, error)
	ListSubscribers(ctx context.Context) ([]Subscriber, error)

	// Settings. GetSetting returns ErrNotFound for an absent key; callers
	// treat absence as "use the compiled-in default", never as a failure.
	GetSetting(ctx context.Context, key string) (string, error)
	AllSettings(ctx context.Context) (map[string]string, error)
	SetSetting(ctx context.Context, key, value string) error

	Close() error
}
