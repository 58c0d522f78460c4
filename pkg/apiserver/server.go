package apiserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/forgecli/forge-api/pkg/backend"
	"github.com/forgecli/forge-api/pkg/ratelimit"
	"github.com/forgecli/forge-api/pkg/version"
	ghandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type apiServer struct {
	ctx  context.Context
	log  *logrus.Entry
	port int
}

func NewAPIServer(ctx context.Context, log *logrus.Entry, port int) *apiServer {
	return &apiServer{
		ctx:  ctx,
		log:  log,
		port: port,
	}
}

func (a *apiServer) Start(b backend.Backend, limiter ratelimit.Limiter) error {
	logrus.Infof("Version: %s", version.Get())

	router := Router(b, limiter, a.log)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: ghandlers.CORS()(router),
	}

	go func() {
		a.log.WithField("port", a.port).Info("starting api server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Fatalf("listen: %s\n", err)
		}
	}()

	<-a.ctx.Done()

	a.log.Info("shutting down the api server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer func() {
		cancel()
	}()

	if err := srv.Shutdown(ctx); err != nil {
		a.log.WithError(err).Error("unable to shutdown the api server gracefully")
		return err
	}

	return nil
}

// Router builds the full route table. Split out from Start so tests can mount
// it on httptest servers.
func Router(b backend.Backend, limiter ratelimit.Limiter, log *logrus.Entry) *mux.Router {
	router := mux.NewRouter().StrictSlash(true)
	router.Use(loggingMiddleware(log))
	h := newHandler(b, limiter)

	// When functioning properly, this route returns the version of the app
	// that is running
	router.Path("/").HandlerFunc(h.root)

	api := router.PathPrefix("/api").Subrouter()

	api.Path("/auth/signup").Methods("POST").HandlerFunc(h.signup)
	api.Path("/auth/login").Methods("POST").HandlerFunc(h.login)

	// All routes using this authedRoutes subrouter require a valid API key
	authedRoutes := api.PathPrefix("/auth").Subrouter()
	authedRoutes.Use(apiKeyAuthMiddleware(b))
	authedRoutes.Path("/verify").Methods("GET").HandlerFunc(h.verify)
	authedRoutes.Path("/profile").Methods("GET").HandlerFunc(h.profile)
	authedRoutes.Path("/regenerate-key").Methods("POST").HandlerFunc(h.regenerateKey)

	api.Path("/deployments").Methods("POST").HandlerFunc(h.createDeployment)
	api.Path("/deployments").Methods("GET").HandlerFunc(h.listDeployments)
	api.Path("/deployments/{id}").Methods("GET").HandlerFunc(h.getDeployment)

	api.Path("/subdomains").Methods("POST").HandlerFunc(h.createSubdomain)
	api.Path("/subdomains").Methods("GET").HandlerFunc(h.listSubdomains)
	api.Path("/subdomains").Methods("PUT").HandlerFunc(h.retargetSubdomain)

	api.Path("/health").Methods("GET", "HEAD").HandlerFunc(h.health)

	// Note: this allows not found urls to be logged via the middleware
	// It **HAS** to be defined after all other paths are defined.
	router.NotFoundHandler = router.NewRoute().HandlerFunc(http.NotFound).GetHandler()

	return router
}
