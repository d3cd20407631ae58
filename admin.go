package tutorsite

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/teachwithpriscilla/tutorsite/storage"
	"github.com/teachwithpriscilla/tutorsite/store"
)

func (a *App) handleAdminDashboard(c echo.Context) error {
	ctx := c.Request().Context()

	// Dashboard counts degrade to zero when the store is unreachable; the
	// page itself still renders.
	posts, err := a.Admin.ListAllPosts(ctx)
	if err != nil {
		c.Logger().Warnf("list posts: %v", err)
		posts = nil
	}
	published := 0
	for _, p := range posts {
		if p.Published() {
			published++
		}
	}
	subscribers, err := a.Admin.ListSubscribers(ctx)
	if err != nil {
		c.Logger().Warnf("list subscribers: %v", err)
		subscribers = nil
	}
	resources, err := a.Admin.ListResources(ctx)
	if err != nil {
		c.Logger().Warnf("list resources: %v", err)
		resources = nil
	}

	data := a.pageData(c, "Dashboard")
	data["TotalPosts"] = len(posts)
	data["PublishedPosts"] = published
	data["DraftPosts"] = len(posts) - published
	data["Subscribers"] = len(subscribers)
	data["Resources"] = len(resources)
	data["Msg"] = c.QueryParam("msg")
	return c.Render(http.StatusOK, "admin_dashboard.html", data)
}

func (a *App) handleAdminPosts(c echo.Context) error {
	posts, err := a.Admin.ListAllPosts(c.Request().Context())
	if err != nil {
		c.Logger().Warnf("list posts: %v", err)
		posts = nil
	}
	data := a.pageData(c, "Posts")
	data["Posts"] = posts
	data["Msg"] = c.QueryParam("msg")
	return c.Render(http.StatusOK, "admin_posts.html", data)
}

func (a *App) handleAdminPostNew(c echo.Context) error {
	data := a.pageData(c, "New post")
	data["Post"] = store.BlogPost{}
	data["Editing"] = false
	data["FormError"] = ""
	return c.Render(http.StatusOK, "admin_post_form.html", data)
}

func (a *App) handleAdminPostEdit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.ErrNotFound
	}
	post, err := a.Admin.GetPostByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.ErrNotFound
		}
		return err
	}
	data := a.pageData(c, "Edit post")
	data["Post"] = post
	data["Editing"] = true
	data["FormError"] = ""
	return c.Render(http.StatusOK, "admin_post_form.html", data)
}

// validationError is a user-facing rejection of form or API input, as
// opposed to an infrastructure failure.
type validationError string

func (e validationError) Error() string { return string(e) }

// PostInput is everything the post form submits.
type PostInput struct {
	ID         uuid.UUID
	Title      string
	Slug       string
	SlugEdited bool
	Excerpt    string
	Content    string
	Publish    bool
}

func postInputFromForm(c echo.Context) (PostInput, error) {
	in := PostInput{
		Title:      strings.TrimSpace(c.FormValue("title")),
		Slug:       strings.TrimSpace(c.FormValue("slug")),
		SlugEdited: c.FormValue("slug_edited") == "1",
		Excerpt:    strings.TrimSpace(c.FormValue("excerpt")),
		Content:    c.FormValue("content"),
		Publish:    c.FormValue("publish") != "",
	}
	if rawID := c.FormValue("id"); rawID != "" {
		id, err := uuid.Parse(rawID)
		if err != nil {
			return in, err
		}
		in.ID = id
	}
	return in, nil
}

// savePost creates or updates a post from form input. Publishing is one-way:
// once a post carries a publish date, edits keep it.
func (a *App) savePost(c echo.Context, in PostInput) (store.BlogPost, error) {
	ctx := c.Request().Context()
	editing := in.ID != uuid.Nil

	var existing store.BlogPost
	if editing {
		var err error
		existing, err = a.Admin.GetPostByID(ctx, in.ID)
		if err != nil {
			return store.BlogPost{ID: in.ID}, err
		}
		// A request without a slug means "keep the one it has".
		if in.Slug == "" {
			in.Slug = existing.Slug
		}
	}

	post := store.BlogPost{
		ID:      in.ID,
		Title:   in.Title,
		Slug:    NextSlug(in.Title, in.Slug, in.SlugEdited, editing),
		Excerpt: in.Excerpt,
		Content: in.Content,
	}
	if post.Title == "" {
		return post, validationError("Title is required.")
	}
	if post.Slug == "" {
		return post, validationError("Slug is required. Add a title or slug.")
	}

	if editing {
		post.PublishedAt = existing.PublishedAt
	}
	if post.PublishedAt == nil && in.Publish {
		now := time.Now().UTC()
		post.PublishedAt = &now
	}

	var err error
	if editing {
		err = a.Admin.UpdatePost(ctx, &post)
	} else {
		err = a.Admin.CreatePost(ctx, &post)
	}
	return post, err
}

func (a *App) handleAdminPostSave(c echo.Context) error {
	in, err := postInputFromForm(c)
	if err != nil {
		return echo.ErrNotFound
	}

	post, err := a.savePost(c, in)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.ErrNotFound
		}
		var msg string
		var ve validationError
		switch {
		case errors.Is(err, store.ErrDuplicateSlug):
			msg = "A post with this slug already exists. Pick another slug."
		case errors.As(err, &ve):
			msg = ve.Error()
		default:
			return err
		}
		data := a.pageData(c, "Edit post")
		data["Post"] = post
		data["Editing"] = in.ID != uuid.Nil
		data["FormError"] = msg
		return c.Render(http.StatusOK, "admin_post_form.html", data)
	}
	return c.Redirect(http.StatusSeeOther, "/admin/posts/?msg="+url.QueryEscape("Saved."))
}

func (a *App) handleAdminPostDelete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.ErrNotFound
	}
	if err := a.Admin.DeletePost(c.Request().Context(), id); err != nil {
		// Deleting twice lands here; the post is gone either way.
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	return c.Redirect(http.StatusSeeOther, "/admin/posts/?msg="+url.QueryEscape("Deleted."))
}

// settingRow is one line of the settings form.
type settingRow struct {
	Key   SettingKey
	Label string
	Value string
}

func settingRows(values map[SettingKey]string) []settingRow {
	rows := make([]settingRow, 0, len(values))
	for _, key := range SettingKeys() {
		rows = append(rows, settingRow{
			Key:   key,
			Label: SettingLabel(key),
			Value: values[key],
		})
	}
	return rows
}

func (a *App) handleAdminSettings(c echo.Context) error {
	// EffectiveSettings hands back the compiled-in defaults even when the
	// store read fails, so the form always renders a full set of rows.
	values, err := EffectiveSettings(c.Request().Context(), a.Admin)
	if err != nil {
		c.Logger().Warnf("load settings: %v", err)
	}
	data := a.pageData(c, "Site settings")
	data["Rows"] = settingRows(values)
	data["Msg"] = c.QueryParam("msg")
	return c.Render(http.StatusOK, "admin_settings.html", data)
}

// handleAdminSettingsSave writes only the keys whose value differs from what
// the form was rendered with; the loaded value rides along in a hidden field
// per key.
func (a *App) handleAdminSettingsSave(c echo.Context) error {
	if err := c.Request().ParseForm(); err != nil {
		return err
	}

	loaded := make(map[SettingKey]string)
	submitted := make(map[SettingKey]string)
	for _, key := range SettingKeys() {
		loaded[key] = c.FormValue("orig_" + string(key))
		submitted[key] = c.FormValue(string(key))
	}

	changed := ChangedSettings(loaded, submitted)
	n, err := SaveSettings(c.Request().Context(), a.Admin, changed)
	msg := ""
	switch {
	case err != nil:
		c.Logger().Errorf("save settings: %v", err)
		msg = "Save failed. Nothing after the first error was written; reload and try again."
	case n == 0:
		msg = "No changes to save."
	default:
		msg = fmt.Sprintf("Saved %d %s.", n, pluralWord(n, "setting", "settings"))
	}
	return c.Redirect(http.StatusSeeOther, "/admin/settings/?msg="+url.QueryEscape(msg))
}

func pluralWord(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

func (a *App) handleAdminSubscribers(c echo.Context) error {
	subscribers, err := a.Admin.ListSubscribers(c.Request().Context())
	if err != nil {
		c.Logger().Warnf("list subscribers: %v", err)
		subscribers = nil
	}
	data := a.pageData(c, "Subscribers")
	data["Subscribers"] = subscribers
	return c.Render(http.StatusOK, "admin_subscribers.html", data)
}

func (a *App) handleAdminResources(c echo.Context) error {
	resources, err := a.Admin.ListResources(c.Request().Context())
	if err != nil {
		c.Logger().Warnf("list resources: %v", err)
		resources = nil
	}
	data := a.pageData(c, "Resources")
	data["Resources"] = resources
	data["Msg"] = c.QueryParam("msg")
	return c.Render(http.StatusOK, "admin_resources.html", data)
}

func (a *App) handleAdminResourceUpload(c echo.Context) error {
	ctx := c.Request().Context()

	title := strings.TrimSpace(c.FormValue("title"))
	if title == "" {
		return c.Redirect(http.StatusSeeOther, "/admin/resources/?msg="+url.QueryEscape("Title is required."))
	}
	file, err := c.FormFile("file")
	if err != nil {
		return c.Redirect(http.StatusSeeOther, "/admin/resources/?msg="+url.QueryEscape("Choose a file to upload."))
	}

	bucket := storage.Resources
	contentType := file.Header.Get("Content-Type")
	if err := bucket.Validate(contentType, file.Size); err != nil {
		return c.Redirect(http.StatusSeeOther, "/admin/resources/?msg="+url.QueryEscape(err.Error()))
	}

	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	key := bucket.Key(file.Filename)
	if isResizableImage(contentType) {
		// Photos get shrunk and re-encoded before they hit storage.
		data, err := processImage(src)
		if err != nil {
			return c.Redirect(http.StatusSeeOther, "/admin/resources/?msg="+url.QueryEscape("That image could not be read."))
		}
		key = strings.TrimSuffix(key, pathExt(key)) + ".jpg"
		contentType = "image/jpeg"
		if err := a.Files.Upload(ctx, key, bytes.NewReader(data), contentType); err != nil {
			return err
		}
	} else {
		if err := a.Files.Upload(ctx, key, src, contentType); err != nil {
			return err
		}
	}

	res := store.Resource{
		Title:       title,
		Description: strings.TrimSpace(c.FormValue("description")),
		FilePath:    key,
	}
	if err := a.Admin.CreateResource(ctx, &res); err != nil {
		// Orphaned object cleanup, best effort.
		_ = a.Files.Delete(ctx, key)
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/admin/resources/?msg="+url.QueryEscape("Uploaded."))
}

// handleAdminPostImageUpload takes an image from the post editor, shrinks
// it, and answers with the URL to embed in the post body. Keys are unique
// per upload, so the URLs can be cached forever.
func (a *App) handleAdminPostImageUpload(c echo.Context) error {
	ctx := c.Request().Context()

	file, err := c.FormFile("image")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Choose an image to upload."})
	}
	bucket := storage.BlogImages
	contentType := file.Header.Get("Content-Type")
	if err := bucket.Validate(contentType, file.Size); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	key := bucket.Key(file.Filename)
	if isResizableImage(contentType) {
		data, err := processImage(src)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "That image could not be read."})
		}
		key = strings.TrimSuffix(key, pathExt(key)) + ".jpg"
		contentType = "image/jpeg"
		if err := a.Files.Upload(ctx, key, bytes.NewReader(data), contentType); err != nil {
			return err
		}
	} else {
		if err := a.Files.Upload(ctx, key, src, contentType); err != nil {
			return err
		}
	}
	return c.JSON(http.StatusOK, map[string]string{
		"url": "/images/" + strings.TrimPrefix(key, bucket.Name+"/"),
	})
}

func pathExt(key string) string {
	if i := strings.LastIndex(key, "."); i >= 0 && i > strings.LastIndex(key, "/") {
		return key[i:]
	}
	return ""
}

func (a *App) handleAdminResourceDelete(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.ErrNotFound
	}
	res, err := a.Admin.GetResource(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Redirect(http.StatusSeeOther, "/admin/resources/?msg="+url.QueryEscape("Already deleted."))
		}
		return err
	}

	// Object first, then the row. A re-run after a partial failure is safe
	// because deleting an absent object is not an error.
	if err := a.Files.Delete(ctx, res.FilePath); err != nil {
		return err
	}
	if err := a.Admin.DeleteResource(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/admin/resources/?msg="+url.QueryEscape("Deleted."))
}
