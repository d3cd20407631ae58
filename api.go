package tutorsite

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/teachwithpriscilla/tutorsite/store"
)

// apiPost is the wire shape of a post on the admin API.
type apiPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Slug        string  `json:"slug"`
	Excerpt     string  `json:"excerpt"`
	Content     string  `json:"content"`
	PublishedAt *string `json:"published_at"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// apiPostInput is what post create/update requests carry.
type apiPostInput struct {
	Title      string `json:"title"`
	Slug       string `json:"slug"`
	SlugEdited bool   `json:"slug_edited"`
	Excerpt    string `json:"excerpt"`
	Content    string `json:"content"`
	Publish    bool   `json:"publish"`
}

func toAPIPost(p store.BlogPost) apiPost {
	out := apiPost{
		ID:        p.ID.String(),
		Title:     p.Title,
		Slug:      p.Slug,
		Excerpt:   p.Excerpt,
		Content:   p.Content,
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: p.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if p.PublishedAt != nil {
		s := p.PublishedAt.UTC().Format(time.RFC3339)
		out.PublishedAt = &s
	}
	return out
}

func apiError(c echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]string{"error": msg})
}

func (a *App) apiSavePost(c echo.Context, id uuid.UUID) error {
	var in apiPostInput
	if err := c.Bind(&in); err != nil {
		return apiError(c, http.StatusBadRequest, "Invalid request body")
	}

	post, err := a.savePost(c, PostInput{
		ID:         id,
		Title:      in.Title,
		Slug:       in.Slug,
		SlugEdited: in.SlugEdited,
		Excerpt:    in.Excerpt,
		Content:    in.Content,
		Publish:    in.Publish,
	})
	if err != nil {
		var ve validationError
		switch {
		case errors.Is(err, store.ErrNotFound):
			return apiError(c, http.StatusNotFound, "Not found")
		case errors.Is(err, store.ErrDuplicateSlug):
			return apiError(c, http.StatusBadRequest, "A post with this slug already exists")
		case errors.As(err, &ve):
			return apiError(c, http.StatusBadRequest, ve.Error())
		default:
			return err
		}
	}

	code := http.StatusOK
	if id == uuid.Nil {
		code = http.StatusCreated
	}
	return c.JSON(code, toAPIPost(post))
}

func (a *App) apiCreatePost(c echo.Context) error {
	return a.apiSavePost(c, uuid.Nil)
}

func (a *App) apiUpdatePost(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apiError(c, http.StatusNotFound, "Not found")
	}
	return a.apiSavePost(c, id)
}

func (a *App) apiDeletePost(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apiError(c, http.StatusNotFound, "Not found")
	}
	if err := a.Admin.DeletePost(c.Request().Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apiError(c, http.StatusNotFound, "Not found")
		}
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// apiSaveSettings accepts a partial map of setting values and writes only
// the ones that differ from what is currently stored.
func (a *App) apiSaveSettings(c echo.Context) error {
	var body map[string]string
	if err := c.Bind(&body); err != nil {
		return apiError(c, http.StatusBadRequest, "Invalid request body")
	}
	for key := range body {
		if !KnownSettingKey(key) {
			return apiError(c, http.StatusBadRequest, "Unknown setting: "+key)
		}
	}

	// A failed read still yields the defaults to diff against; worst case a
	// value equal to its default gets written once more.
	ctx := c.Request().Context()
	current, err := EffectiveSettings(ctx, a.Admin)
	if err != nil {
		c.Logger().Warnf("load settings: %v", err)
	}

	changed := make(map[SettingKey]string)
	for key, value := range body {
		k := SettingKey(key)
		if current[k] != value {
			changed[k] = value
		}
	}

	n, err := SaveSettings(ctx, a.Admin, changed)
	if err != nil {
		c.Logger().Errorf("save settings: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Save failed; nothing after the first error was written",
			"saved": n,
		})
	}
	return c.JSON(http.StatusOK, map[string]int{"saved": n})
}
