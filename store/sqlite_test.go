package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func setupTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "site.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func publishedAt(t time.Time) *time.Time {
	return &t
}

func TestCreateAndGetPost(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	post := BlogPost{
		Title:       "Test Post",
		Slug:        "test-post",
		Excerpt:     "A short excerpt",
		Content:     "<p>Hello readers</p>",
		PublishedAt: publishedAt(now),
	}
	if err := s.CreatePost(ctx, &post); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}
	if post.ID == uuid.Nil {
		t.Fatal("CreatePost should assign an id")
	}
	if post.CreatedAt.IsZero() || post.UpdatedAt.IsZero() {
		t.Fatal("CreatePost should assign timestamps")
	}

	got, err := s.GetPostBySlug(ctx, "test-post")
	if err != nil {
		t.Fatalf("GetPostBySlug failed: %v", err)
	}
	if got.ID != post.ID {
		t.Errorf("ID = %v, want %v", got.ID, post.ID)
	}
	if got.Title != post.Title {
		t.Errorf("Title = %q, want %q", got.Title, post.Title)
	}
	if got.Excerpt != post.Excerpt {
		t.Errorf("Excerpt = %q, want %q", got.Excerpt, post.Excerpt)
	}
	if got.Content != post.Content {
		t.Errorf("Content = %q, want %q", got.Content, post.Content)
	}
	if got.PublishedAt == nil || !got.PublishedAt.Equal(now.Truncate(time.Nanosecond)) {
		t.Errorf("PublishedAt = %v, want %v", got.PublishedAt, now)
	}

	byID, err := s.GetPostByID(ctx, post.ID)
	if err != nil {
		t.Fatalf("GetPostByID failed: %v", err)
	}
	if byID.Slug != "test-post" {
		t.Errorf("Slug = %q, want %q", byID.Slug, "test-post")
	}
}

func TestCreatePostDuplicateSlug(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first := BlogPost{Title: "First", Slug: "shared-slug", Content: "a"}
	if err := s.CreatePost(ctx, &first); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	second := BlogPost{Title: "Second", Slug: "shared-slug", Content: "b"}
	if err := s.CreatePost(ctx, &second); !errors.Is(err, ErrDuplicateSlug) {
		t.Fatalf("expected ErrDuplicateSlug, got %v", err)
	}
}

func TestUpdatePostSlugExcludesSelf(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	post := BlogPost{Title: "Mine", Slug: "mine", Content: "a"}
	if err := s.CreatePost(ctx, &post); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}
	other := BlogPost{Title: "Other", Slug: "other", Content: "b"}
	if err := s.CreatePost(ctx, &other); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	// Keeping its own slug is fine.
	post.Title = "Mine, updated"
	if err := s.UpdatePost(ctx, &post); err != nil {
		t.Fatalf("UpdatePost with own slug failed: %v", err)
	}

	// Taking another post's slug is not.
	post.Slug = "other"
	if err := s.UpdatePost(ctx, &post); !errors.Is(err, ErrDuplicateSlug) {
		t.Fatalf("expected ErrDuplicateSlug, got %v", err)
	}
}

func TestUpdatePostBumpsUpdatedAt(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	post := BlogPost{Title: "Bump", Slug: "bump", Content: "a"}
	if err := s.CreatePost(ctx, &post); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}
	created := post.UpdatedAt

	time.Sleep(2 * time.Millisecond)
	post.Content = "b"
	if err := s.UpdatePost(ctx, &post); err != nil {
		t.Fatalf("UpdatePost failed: %v", err)
	}
	got, err := s.GetPostByID(ctx, post.ID)
	if err != nil {
		t.Fatalf("GetPostByID failed: %v", err)
	}
	if !got.UpdatedAt.After(created) {
		t.Errorf("UpdatedAt = %v, want later than %v", got.UpdatedAt, created)
	}
	if got.Content != "b" {
		t.Errorf("Content = %q, want %q", got.Content, "b")
	}
}

func TestListPublishedPostsGating(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	older := time.Now().UTC().Add(-2 * time.Hour)
	future := time.Now().UTC().Add(time.Hour)

	posts := []BlogPost{
		{Title: "Live", Slug: "live", Content: "x", PublishedAt: publishedAt(past)},
		{Title: "Older live", Slug: "older-live", Content: "x", PublishedAt: publishedAt(older)},
		{Title: "Scheduled", Slug: "scheduled", Content: "x", PublishedAt: publishedAt(future)},
		{Title: "Draft", Slug: "draft", Content: "x"},
	}
	for i := range posts {
		if err := s.CreatePost(ctx, &posts[i]); err != nil {
			t.Fatalf("CreatePost %q failed: %v", posts[i].Slug, err)
		}
	}

	public, err := s.ListPublishedPosts(ctx)
	if err != nil {
		t.Fatalf("ListPublishedPosts failed: %v", err)
	}
	if len(public) != 2 {
		t.Fatalf("public posts = %d, want 2", len(public))
	}
	if public[0].Slug != "live" || public[1].Slug != "older-live" {
		t.Errorf("public order = [%s %s], want [live older-live]", public[0].Slug, public[1].Slug)
	}

	all, err := s.ListAllPosts(ctx)
	if err != nil {
		t.Fatalf("ListAllPosts failed: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("all posts = %d, want 4", len(all))
	}
}

func TestRelatedPosts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	var current BlogPost
	for i, slug := range []string{"current", "one", "two", "three", "four", "draft"} {
		p := BlogPost{Title: slug, Slug: slug, Content: "x"}
		if slug != "draft" {
			p.PublishedAt = publishedAt(time.Now().UTC().Add(-time.Duration(i+1) * time.Hour))
		}
		if err := s.CreatePost(ctx, &p); err != nil {
			t.Fatalf("CreatePost %q failed: %v", slug, err)
		}
		if slug == "current" {
			current = p
		}
	}

	related, err := s.RelatedPosts(ctx, current.ID, 3)
	if err != nil {
		t.Fatalf("RelatedPosts failed: %v", err)
	}
	if len(related) != 3 {
		t.Fatalf("related = %d, want 3", len(related))
	}
	for _, p := range related {
		if p.ID == current.ID {
			t.Error("related posts must not include the current post")
		}
		if p.Slug == "draft" {
			t.Error("related posts must not include drafts")
		}
	}
}

func TestRelatedPostsNoneAvailable(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	only := BlogPost{Title: "Only", Slug: "only", Content: "x", PublishedAt: publishedAt(time.Now().UTC())}
	if err := s.CreatePost(ctx, &only); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	related, err := s.RelatedPosts(ctx, only.ID, 3)
	if err != nil {
		t.Fatalf("RelatedPosts failed: %v", err)
	}
	if len(related) != 0 {
		t.Errorf("related = %d, want 0", len(related))
	}
}

func TestDeletePost(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	post := BlogPost{Title: "Gone", Slug: "gone", Content: "x"}
	if err := s.CreatePost(ctx, &post); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}
	if err := s.DeletePost(ctx, post.ID); err != nil {
		t.Fatalf("DeletePost failed: %v", err)
	}
	if _, err := s.GetPostByID(ctx, post.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	// Deleting again reports not-found but must not blow up.
	if err := s.DeletePost(ctx, post.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on repeat delete, got %v", err)
	}
}

func TestResourceLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first := Resource{Title: "Worksheet", Description: "Verbs", FilePath: "resources/verbs.pdf"}
	if err := s.CreateResource(ctx, &first); err != nil {
		t.Fatalf("CreateResource failed: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	second := Resource{Title: "Flashcards", FilePath: "resources/cards.pdf"}
	if err := s.CreateResource(ctx, &second); err != nil {
		t.Fatalf("CreateResource failed: %v", err)
	}

	list, err := s.ListResources(ctx)
	if err != nil {
		t.Fatalf("ListResources failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("resources = %d, want 2", len(list))
	}
	if list[0].ID != second.ID {
		t.Errorf("resources should be ordered newest first, got %q first", list[0].Title)
	}

	got, err := s.GetResource(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetResource failed: %v", err)
	}
	if got.FilePath != "resources/verbs.pdf" {
		t.Errorf("FilePath = %q, want %q", got.FilePath, "resources/verbs.pdf")
	}

	got.Title = "Worksheet v2"
	if err := s.UpdateResource(ctx, &got); err != nil {
		t.Fatalf("UpdateResource failed: %v", err)
	}

	if err := s.DeleteResource(ctx, first.ID); err != nil {
		t.Fatalf("DeleteResource failed: %v", err)
	}
	if _, err := s.GetResource(ctx, first.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetResourceUnknownID(t *testing.T) {
	s := setupTestStore(t)

	if _, err := s.GetResource(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateSubscriberDuplicateEmail(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	sub, err := s.CreateSubscriber(ctx, "reader@example.com")
	if err != nil {
		t.Fatalf("CreateSubscriber failed: %v", err)
	}
	if sub.Confirmed {
		t.Error("new subscribers must start unconfirmed")
	}

	if _, err := s.CreateSubscriber(ctx, "reader@example.com"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	subs, err := s.ListSubscribers(ctx)
	if err != nil {
		t.Fatalf("ListSubscribers failed: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("subscribers = %d, want 1 (no duplicate row)", len(subs))
	}
}

func TestListSubscribersOrder(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateSubscriber(ctx, "first@example.com"); err != nil {
		t.Fatalf("CreateSubscriber failed: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, err := s.CreateSubscriber(ctx, "second@example.com"); err != nil {
		t.Fatalf("CreateSubscriber failed: %v", err)
	}

	subs, err := s.ListSubscribers(ctx)
	if err != nil {
		t.Fatalf("ListSubscribers failed: %v", err)
	}
	if len(subs) != 2 || subs[0].Email != "second@example.com" {
		t.Errorf("subscribers should be ordered newest first, got %+v", subs)
	}
}

func TestSettings(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.GetSetting(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for absent key, got %v", err)
	}

	if err := s.SetSetting(ctx, "hero_title", "Welcome!"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	v, err := s.GetSetting(ctx, "hero_title")
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if v != "Welcome!" {
		t.Errorf("value = %q, want %q", v, "Welcome!")
	}

	// Upsert overwrites.
	if err := s.SetSetting(ctx, "hero_title", "Hello again"); err != nil {
		t.Fatalf("SetSetting upsert failed: %v", err)
	}
	if err := s.SetSetting(ctx, "mission_quote", "Every lesson is an adventure."); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}

	all, err := s.AllSettings(ctx)
	if err != nil {
		t.Fatalf("AllSettings failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("settings = %d, want 2", len(all))
	}
	if all["hero_title"] != "Hello again" {
		t.Errorf("hero_title = %q, want %q", all["hero_title"], "Hello again")
	}
}
