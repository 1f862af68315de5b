package apihttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pospon/api/internal/cfg"
	"github.com/pospon/api/internal/log"
	"github.com/pospon/api/internal/schema"
)

const (
	apiName        = "Pospon API"
	apiVersion     = "1.0.0"
	apiDescription = "Backend API for Pospon App"
)

// Config wires the API's dependencies.
type Config struct {
	Logger log.Logger
	Users  *UserStore
	Tokens *TokenIssuer

	// Mode controls whether internal error messages are exposed and is
	// echoed in the health payload.
	Mode cfg.Mode

	// AuthLimiter, when set, rate limits the /api/auth subtree.
	AuthLimiter func(http.Handler) http.Handler

	// OnValidationFailure is called with the schema name whenever a
	// request fails validation.
	OnValidationFailure func(schemaName string)
}

// API serves the public JSON endpoints.
type API struct {
	logger    log.Logger
	users     *UserStore
	tokens    *TokenIssuer
	validator *Validator
	mode      cfg.Mode
	dev       bool
	startedAt time.Time

	authLimiter func(http.Handler) http.Handler
}

func NewAPI(c Config) *API {
	if c.Logger == nil {
		c.Logger = log.Nop()
	}
	if c.Users == nil {
		c.Users = NewUserStore()
	}
	if c.Tokens == nil {
		c.Tokens = NewTokenIssuer("pospon-dev-secret")
	}
	return &API{
		logger:      c.Logger,
		users:       c.Users,
		tokens:      c.Tokens,
		validator:   &Validator{OnFailure: c.OnValidationFailure},
		mode:        c.Mode,
		dev:         c.Mode == cfg.ModeDevelopment,
		startedAt:   time.Now(),
		authLimiter: c.AuthLimiter,
	}
}

// RegisterRoutes mounts the API under /api on the given router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.NotFound(a.notFound)
	r.MethodNotAllowed(a.methodNotAllowed)

	r.Route("/api", func(r chi.Router) {
		r.Get("/", a.handle(a.hello))
		r.Get("/health", a.handle(a.health))
		r.Get("/info", a.handle(a.info))

		r.Route("/auth", func(r chi.Router) {
			if a.authLimiter != nil {
				r.Use(a.authLimiter)
			}
			r.With(a.validator.Body(schema.Login)).Post("/login", a.handle(a.login))
			r.With(a.validator.Body(schema.Register)).Post("/register", a.handle(a.register))
			r.With(a.validator.Body(schema.RefreshToken)).Post("/refresh", a.handle(a.refresh))
			r.Post("/logout", a.handle(a.logout))
			r.Get("/profile", a.handle(a.profile))
		})
	})
}

func (a *API) hello(w http.ResponseWriter, r *http.Request) error {
	WriteSuccess(w, http.StatusOK, "Welcome to Pospon API", "Hello World! 🚀")
	return nil
}

// HealthData is the payload of GET /api/health. Uptime is in seconds.
type HealthData struct {
	Status      string  `json:"status"`
	Timestamp   string  `json:"timestamp"`
	Uptime      float64 `json:"uptime"`
	Environment string  `json:"environment"`
	Version     string  `json:"version"`
}

func (a *API) health(w http.ResponseWriter, r *http.Request) error {
	WriteSuccess(w, http.StatusOK, "Server is healthy", HealthData{
		Status:      "ok",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Uptime:      time.Since(a.startedAt).Seconds(),
		Environment: string(a.mode),
		Version:     apiVersion,
	})
	return nil
}

// InfoData is the payload of GET /api/info.
type InfoData struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Description string            `json:"description"`
	Endpoints   map[string]string `json:"endpoints"`
}

func (a *API) info(w http.ResponseWriter, r *http.Request) error {
	WriteSuccess(w, http.StatusOK, "API Information", InfoData{
		Name:        apiName,
		Version:     apiVersion,
		Description: apiDescription,
		Endpoints: map[string]string{
			"root":   "/api/",
			"health": "/api/health",
			"info":   "/api/info",
		},
	})
	return nil
}
