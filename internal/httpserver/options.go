package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pospon/api/internal/httpmw"
	"github.com/pospon/api/internal/log"
)

type Options struct {
	Logger log.Logger
	Port   int

	// APIRoutes mounts the application's routes on the router.
	APIRoutes func(chi.Router)

	// CORS, when set, enables the allow-list CORS stage.
	CORS *httpmw.CORSPolicy

	// FloodMW is the per-IP flood guard, outermost of the limiting
	// stages. GlobalLimitMW is the fixed-window global tier.
	FloodMW       func(http.Handler) http.Handler
	GlobalLimitMW func(http.Handler) http.Handler

	MetricsMW func(http.Handler) http.Handler

	UseRecoverMW bool
	OnPanic      func()

	ClientIPOpts httpmw.ClientIPOptions

	// Version stamps X-Api-Version / X-Api-Commit response headers.
	Version httpmw.VersionInfo

	// DedupeWhitelist lists query parameters allowed to repeat.
	// Defaults to the pagination/filtering set.
	DedupeWhitelist []string

	// MaxBodyBytes caps request bodies. Defaults to 10 MB.
	MaxBodyBytes int64
}
