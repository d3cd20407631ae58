package tutorsite

import "testing"

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"My First Lesson!", "my-first-lesson"},
		{"My First Lesson!! (Updated)", "my-first-lesson-updated"},
		{"Hello, World", "hello-world"},
		{"  Spaces  Everywhere  ", "spaces-everywhere"},
		{"Café Conversación", "cafe-conversacion"},
		{"Über Grammar — Part 2", "uber-grammar-part-2"},
		{"already-a-slug", "already-a-slug"},
		{"100% Effort!!!", "100-effort"},
		{"", ""},
		{"!!!", ""},
	}
	for _, tc := range cases {
		if got := Slugify(tc.in); got != tc.want {
			t.Errorf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNextSlugTracksTitleOnNewPost(t *testing.T) {
	if got := NextSlug("My First Lesson!", "", false, false); got != "my-first-lesson" {
		t.Fatalf("got %q", got)
	}
	// The slug follows a changed title while it was never hand-edited.
	if got := NextSlug("My First Lesson Updated", "my-first-lesson", false, false); got != "my-first-lesson-updated" {
		t.Fatalf("got %q", got)
	}
}

func TestNextSlugPinnedByManualEdit(t *testing.T) {
	if got := NextSlug("A Whole New Title", "my-custom-slug", true, false); got != "my-custom-slug" {
		t.Fatalf("got %q", got)
	}
	// A hand-typed slug still gets normalized.
	if got := NextSlug("Anything", "My Custom Slug!", true, false); got != "my-custom-slug" {
		t.Fatalf("got %q", got)
	}
}

func TestNextSlugStableWhenEditing(t *testing.T) {
	// Retitling an existing post must not break its URL.
	if got := NextSlug("Renamed Title", "original-slug", false, true); got != "original-slug" {
		t.Fatalf("got %q", got)
	}
	// Unless the post somehow has no slug yet.
	if got := NextSlug("Renamed Title", "", false, true); got != "renamed-title" {
		t.Fatalf("got %q", got)
	}
}
