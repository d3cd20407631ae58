package tutorsite

import (
	"crypto/subtle"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/teachwithpriscilla/tutorsite/storage"
	"github.com/teachwithpriscilla/tutorsite/store"
)

// settingsView converts the typed settings map to the string-keyed form
// templates can index.
func settingsView(vals map[SettingKey]string) map[string]string {
	out := make(map[string]string, len(vals))
	for k, v := range vals {
		out[string(k)] = v
	}
	return out
}

// pageData builds the fields every template expects from the base layout.
func (a *App) pageData(c echo.Context, title string) echo.Map {
	return echo.Map{
		"SiteName":        a.Config.SiteName,
		"SiteURL":         a.Config.SiteURL,
		"SiteDescription": a.Config.SiteDescription,
		"Title":           title,
		"IsAdmin":         IsAdmin(c),
		"Csrf":            CsrfToken(c),
	}
}

func (a *App) handleHome(c echo.Context) error {
	ctx := c.Request().Context()

	settings, err := EffectiveSettings(ctx, a.Public)
	if err != nil {
		c.Logger().Warnf("load settings: %v", err)
	}

	// The hero features the most recent published post. No posts yet is
	// not an error, the section just stays empty.
	var latest *store.BlogPost
	posts, err := a.Public.ListPublishedPosts(ctx)
	if err != nil {
		c.Logger().Warnf("list posts: %v", err)
	} else if len(posts) > 0 {
		latest = &posts[0]
	}

	data := a.pageData(c, a.Config.SiteName)
	data["Settings"] = settingsView(settings)
	data["Latest"] = latest
	data["Msg"] = c.QueryParam("msg")
	data["JsonLD"] = WebsiteJsonLD(a.Config)
	return c.Render(http.StatusOK, "home.html", data)
}

func (a *App) handleAbout(c echo.Context) error {
	settings, err := EffectiveSettings(c.Request().Context(), a.Public)
	if err != nil {
		c.Logger().Warnf("load settings: %v", err)
	}
	data := a.pageData(c, "About")
	data["Settings"] = settingsView(settings)
	return c.Render(http.StatusOK, "about.html", data)
}

func (a *App) handleBlog(c echo.Context) error {
	posts, err := a.Public.ListPublishedPosts(c.Request().Context())
	if err != nil {
		// The archive degrades to an empty list rather than erroring the
		// whole page.
		c.Logger().Warnf("list posts: %v", err)
		posts = nil
	}
	data := a.pageData(c, "Blog")
	data["Posts"] = posts
	return c.Render(http.StatusOK, "blog.html", data)
}

func (a *App) handlePost(c echo.Context) error {
	ctx := c.Request().Context()

	post, err := a.Public.GetPostBySlug(ctx, c.Param("slug"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.ErrNotFound
		}
		return err
	}
	// Drafts and scheduled posts are indistinguishable from missing ones.
	if !post.Published() {
		return echo.ErrNotFound
	}

	related, err := a.Public.RelatedPosts(ctx, post.ID, 3)
	if err != nil {
		c.Logger().Warnf("related posts: %v", err)
		related = nil
	}

	data := a.pageData(c, post.Title)
	data["Post"] = post
	data["Related"] = related
	data["JsonLD"] = BlogPostingJsonLD(post, a.Config)
	return c.Render(http.StatusOK, "post.html", data)
}

func (a *App) handleResources(c echo.Context) error {
	resources, err := a.Public.ListResources(c.Request().Context())
	if err != nil {
		c.Logger().Warnf("list resources: %v", err)
		resources = nil
	}
	data := a.pageData(c, "Free Resources")
	data["Resources"] = resources
	return c.Render(http.StatusOK, "resources.html", data)
}

func (a *App) handleResourceDownload(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.ErrNotFound
	}
	res, err := a.Public.GetResource(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.ErrNotFound
		}
		return err
	}

	downloadURL, err := a.Files.DownloadURL(ctx, res.FilePath, path.Base(res.FilePath))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Metadata row exists but the object is gone.
			return echo.ErrNotFound
		}
		return err
	}
	return c.Redirect(http.StatusFound, downloadURL)
}

// handleBlogImage streams an uploaded post image out of object storage, so
// the URLs embedded in post bodies work the same on every backend.
func (a *App) handleBlogImage(c echo.Context) error {
	name := c.Param("name")
	if name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return echo.ErrNotFound
	}
	rc, err := a.Files.Download(c.Request().Context(), storage.BlogImages.Name+"/"+name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return echo.ErrNotFound
		}
		return err
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return c.Stream(http.StatusOK, contentType, rc)
}

func (a *App) handleSubscribe(c echo.Context) error {
	email := strings.TrimSpace(strings.ToLower(c.FormValue("email")))
	if email == "" || !strings.Contains(email, "@") {
		return redirectWithMsg(c, "Please enter a valid email address.")
	}

	_, err := a.Admin.CreateSubscriber(c.Request().Context(), email)
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return redirectWithMsg(c, "You're already subscribed!")
		}
		return err
	}
	return redirectWithMsg(c, "Thanks for subscribing! Talk soon.")
}

func redirectWithMsg(c echo.Context, msg string) error {
	return c.Redirect(http.StatusSeeOther, "/?msg="+url.QueryEscape(msg))
}

func (a *App) handleLoginForm(c echo.Context) error {
	if IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	data := a.pageData(c, "Sign in")
	data["ShowError"] = false
	return c.Render(http.StatusOK, "login.html", data)
}

func (a *App) handleLogin(c echo.Context) error {
	ip := c.RealIP()
	if !a.loginLimiter.Check(ip) {
		return c.String(http.StatusTooManyRequests, "Too many login attempts. Try again later.")
	}
	pass := c.FormValue("password")
	if subtle.ConstantTimeCompare([]byte(pass), []byte(a.Config.AdminPassword)) == 1 {
		if err := setAdminSession(c); err != nil {
			return err
		}
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	a.loginLimiter.Record(ip)
	data := a.pageData(c, "Sign in")
	data["ShowError"] = true
	return c.Render(http.StatusOK, "login.html", data)
}

func (a *App) handleLogout(c echo.Context) error {
	if err := clearAdminSession(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/")
}

func (a *App) handleRobots(c echo.Context) error {
	var b strings.Builder
	b.WriteString("User-agent: *\n")
	b.WriteString("Disallow: /admin/\n")
	b.WriteString("Disallow: /api/\n\n")
	b.WriteString("Sitemap: " + a.Config.SiteURL + "/sitemap.xml\n")
	return c.String(http.StatusOK, b.String())
}

func (a *App) handleSitemap(c echo.Context) error {
	posts, err := a.Public.ListPublishedPosts(c.Request().Context())
	if err != nil {
		c.Logger().Warnf("list posts: %v", err)
		posts = nil
	}
	return a.renderSitemap(c, posts)
}

func (a *App) handleFeed(c echo.Context) error {
	posts, err := a.Public.ListPublishedPosts(c.Request().Context())
	if err != nil {
		c.Logger().Warnf("list posts: %v", err)
		posts = nil
	}
	return a.renderRSS(c, posts)
}
