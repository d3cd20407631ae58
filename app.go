// Package tutorsite is the web application behind a solo English tutor's
// site: a public blog, downloadable teaching resources, a
// newsletter signup, and a session-gated admin dashboard for managing
// all of it. Built on Echo, it runs against a hosted Postgres backend
// in production and plain SQLite for local development.
package tutorsite

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/teachwithpriscilla/tutorsite/storage"
	"github.com/teachwithpriscilla/tutorsite/store"
)

// App is the central application. It wires together the stores, object
// storage, handlers, middleware, and templates.
type App struct {
	Config Config
	Echo   *echo.Echo

	// Admin runs on the privileged connection and is what the dashboard
	// writes through. Public runs on the restricted connection and serves
	// anonymous page reads. With a single DATABASE_URL they are the same
	// store.
	Admin  store.Store
	Public store.Store

	// Files holds resource downloads and uploaded images.
	Files storage.Backend

	loginLimiter *LoginLimiter
}

// New creates an App with the given configuration. Stores and storage are
// opened by Start.
func New(cfg Config) *App {
	return &App{
		Config: cfg,
		Echo:   echo.New(),
	}
}

// Start opens the database and storage backends, wires middleware and
// routes, and runs the server until it is shut down.
func (a *App) Start() error {
	ctx := context.Background()

	admin, err := openStore(ctx, a.Config.DatabaseURL, false)
	if err != nil {
		return fmt.Errorf("tutorsite: open store: %w", err)
	}
	a.Admin = admin

	if a.Config.PublicDatabaseURL != "" {
		public, err := openStore(ctx, a.Config.PublicDatabaseURL, true)
		if err != nil {
			return fmt.Errorf("tutorsite: open public store: %w", err)
		}
		a.Public = public
	} else {
		a.Public = admin
	}

	files, err := a.openStorage(ctx)
	if err != nil {
		return fmt.Errorf("tutorsite: open storage: %w", err)
	}
	a.Files = files

	a.setup()

	if err := a.Echo.Start(a.Config.Addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// setup wires everything that does not touch the network: renderer,
// middleware, routes, and the login limiter. Tests call it directly
// after injecting their own stores.
func (a *App) setup() {
	a.loginLimiter = NewLoginLimiter(5, time.Minute)
	a.Echo.Renderer = NewRenderer()
	a.setupMiddleware()
	a.setupRoutes()
}

func openStore(ctx context.Context, dsn string, restricted bool) (store.Store, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		if restricted {
			return store.OpenPostgresRestricted(ctx, dsn)
		}
		return store.OpenPostgres(ctx, dsn)
	case strings.HasPrefix(dsn, "sqlite:"):
		return store.OpenSQLite(strings.TrimPrefix(dsn, "sqlite:"))
	default:
		return nil, fmt.Errorf("unsupported database url %q (want postgres:// or sqlite:)", dsn)
	}
}

func (a *App) openStorage(ctx context.Context) (storage.Backend, error) {
	url := a.Config.StorageURL
	switch {
	case strings.HasPrefix(url, "s3://"):
		return storage.NewS3(ctx, storage.S3Config{
			Region:          a.Config.AWSRegion,
			Bucket:          strings.TrimPrefix(url, "s3://"),
			AccessKeyID:     a.Config.AWSAccessKeyID,
			SecretAccessKey: a.Config.AWSSecretAccessKey,
			Endpoint:        a.Config.AWSEndpoint,
			UsePathStyle:    a.Config.AWSUsePathStyle,
			PresignTTL:      a.Config.PresignTTL,
		})
	case strings.HasPrefix(url, "file://"):
		return storage.NewFS(strings.TrimPrefix(url, "file://"), "/files/")
	default:
		return nil, fmt.Errorf("unsupported storage url %q (want s3:// or file://)", url)
	}
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.Static("/public", "public")
	if fsBackend, ok := a.Files.(*storage.FS); ok {
		e.Static("/files", fsBackend.BaseDir())
	}

	e.GET("/robots.txt", a.handleRobots)
	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/feed.xml", a.handleFeed)

	// Public pages
	e.GET("/", a.handleHome)
	e.GET("/about/", a.handleAbout)
	e.GET("/blog/", a.handleBlog)
	e.GET("/blog/:slug/", a.handlePost)
	e.GET("/resources/", a.handleResources)
	e.GET("/resources/:id/download/", a.handleResourceDownload)
	e.GET("/images/:name", a.handleBlogImage)
	e.POST("/subscribe/", a.handleSubscribe)

	// Login lives outside /admin so the dashboard itself never reveals a
	// login form to anonymous visitors.
	e.GET("/login/", a.handleLoginForm)
	e.POST("/login/", a.handleLogin)
	e.POST("/logout/", a.handleLogout)

	// Admin pages. Without a session every route here 404s.
	admin := e.Group("/admin", a.requireAdmin)
	admin.GET("/", a.handleAdminDashboard)
	admin.GET("/posts/", a.handleAdminPosts)
	admin.GET("/posts/new/", a.handleAdminPostNew)
	admin.GET("/posts/:id/edit/", a.handleAdminPostEdit)
	admin.POST("/posts/save/", a.handleAdminPostSave)
	admin.POST("/posts/:id/delete/", a.handleAdminPostDelete)
	admin.POST("/posts/image/", a.handleAdminPostImageUpload)
	admin.GET("/settings/", a.handleAdminSettings)
	admin.POST("/settings/", a.handleAdminSettingsSave)
	admin.GET("/subscribers/", a.handleAdminSubscribers)
	admin.GET("/resources/", a.handleAdminResources)
	admin.POST("/resources/upload/", a.handleAdminResourceUpload)
	admin.POST("/resources/:id/delete/", a.handleAdminResourceDelete)

	// JSON API for the dashboard's async saves. Same session gate, JSON 404.
	api := e.Group("/api/admin", a.requireAdminAPI)
	api.POST("/posts", a.apiCreatePost)
	api.PUT("/posts/:id", a.apiUpdatePost)
	api.DELETE("/posts/:id", a.apiDeletePost)
	api.POST("/settings", a.apiSaveSettings)
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.Public != nil && a.Public != a.Admin {
		a.Public.Close()
	}
	if a.Admin != nil {
		return a.Admin.Close()
	}
	return nil
}
