package tutorsite

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

// doJSON issues an authenticated JSON request. The API sits outside the CSRF
// middleware, so only the session cookie matters.
func doJSON(t *testing.T, a *App, cookies []*http.Cookie, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	return do(a, req)
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("bad JSON response %q: %v", rec.Body.String(), err)
	}
}

func TestAPICreatePost(t *testing.T) {
	a := newTestApp(t)
	cookies := loginAs(t, a)

	rec := doJSON(t, a, cookies, http.MethodPost, "/api/admin/posts",
		`{"title":"Teaching Phonics","excerpt":"Short version","content":"<p>Long version</p>","publish":true}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var got apiPost
	decodeJSON(t, rec, &got)
	if got.Slug != "teaching-phonics" {
		t.Errorf("slug = %q, want derived from title", got.Slug)
	}
	if got.PublishedAt == nil {
		t.Error("publish:true should set published_at")
	}
	if got.ID == "" {
		t.Error("response must carry the assigned id")
	}
}

func TestAPICreatePostDuplicateSlug(t *testing.T) {
	a := newTestApp(t)
	cookies := loginAs(t, a)

	first := doJSON(t, a, cookies, http.MethodPost, "/api/admin/posts",
		`{"title":"Hello World","content":"x"}`)
	if first.Code != http.StatusCreated {
		t.Fatalf("first create: %d", first.Code)
	}

	rec := doJSON(t, a, cookies, http.MethodPost, "/api/admin/posts",
		`{"title":"Something Else","slug":"hello-world","slug_edited":true,"content":"y"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
	var body map[string]string
	decodeJSON(t, rec, &body)
	if body["error"] != "A post with this slug already exists" {
		t.Fatalf("error = %q", body["error"])
	}
}

func TestAPIUpdatePostKeepsSlugAndPublishDate(t *testing.T) {
	a := newTestApp(t)
	cookies := loginAs(t, a)

	rec := doJSON(t, a, cookies, http.MethodPost, "/api/admin/posts",
		`{"title":"Original Title","content":"x","publish":true}`)
	var created apiPost
	decodeJSON(t, rec, &created)

	rec = doJSON(t, a, cookies, http.MethodPut, "/api/admin/posts/"+created.ID,
		`{"title":"Retitled Completely","content":"y"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var updated apiPost
	decodeJSON(t, rec, &updated)
	if updated.Slug != created.Slug {
		t.Errorf("slug changed on edit: %q -> %q", created.Slug, updated.Slug)
	}
	if updated.PublishedAt == nil || *updated.PublishedAt != *created.PublishedAt {
		t.Error("publish date must survive edits")
	}
}

func TestAPIValidationError(t *testing.T) {
	a := newTestApp(t)
	cookies := loginAs(t, a)

	rec := doJSON(t, a, cookies, http.MethodPost, "/api/admin/posts", `{"content":"no title"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
}

func TestAPIDeletePost(t *testing.T) {
	a := newTestApp(t)
	cookies := loginAs(t, a)

	rec := doJSON(t, a, cookies, http.MethodPost, "/api/admin/posts", `{"title":"Doomed","content":"x"}`)
	var created apiPost
	decodeJSON(t, rec, &created)

	rec = doJSON(t, a, cookies, http.MethodDelete, "/api/admin/posts/"+created.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status %d, want 204", rec.Code)
	}
	rec = doJSON(t, a, cookies, http.MethodDelete, "/api/admin/posts/"+created.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: %d, want 404", rec.Code)
	}
}

func TestAPISaveSettingsWritesOnlyDiffs(t *testing.T) {
	a := newTestApp(t)
	cookies := loginAs(t, a)

	rec := doJSON(t, a, cookies, http.MethodPost, "/api/admin/settings",
		`{"hero_title":"API Title","newsletter_heading":"`+settingDefaults[SettingNewsletterHeading]+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]int
	decodeJSON(t, rec, &body)
	if body["saved"] != 1 {
		t.Fatalf("saved = %d, want 1 (unchanged default skipped)", body["saved"])
	}

	// Re-sending the same value is a no-op.
	rec = doJSON(t, a, cookies, http.MethodPost, "/api/admin/settings", `{"hero_title":"API Title"}`)
	decodeJSON(t, rec, &body)
	if body["saved"] != 0 {
		t.Fatalf("saved = %d, want 0", body["saved"])
	}
}

func TestAPISaveSettingsRejectsUnknownKey(t *testing.T) {
	a := newTestApp(t)
	cookies := loginAs(t, a)

	rec := doJSON(t, a, cookies, http.MethodPost, "/api/admin/settings", `{"nope":"x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
}
