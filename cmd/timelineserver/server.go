package main

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/overlaytrust/timeline/internal/timelinelog"
)

// newRouter builds the demo/introspection HTTP surface: an operator-facing
// front door for exercising Allowed/Authorize/Revoke and the
// resolution-policy log; there is no route for Check. This is explicitly not
// the gossip/network endpoint
// spec.md excludes — it is local tooling, analogous to the teacher's
// /health and /policies routes.
func newRouter(app *App, log *timelinelog.Logger) http.Handler {
	router := mux.NewRouter()
	router.Use(CORS)
	router.Use(Logging(log))
	router.Use(RequestID)
	router.Use(Recovery(log))

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/allowed", app.handleAllowed).Methods(http.MethodGet)
	v1.HandleFunc("/authorize", app.handleAuthorizeOrRevoke(true)).Methods(http.MethodPost)
	v1.HandleFunc("/revoke", app.handleAuthorizeOrRevoke(false)).Methods(http.MethodPost)
	v1.HandleFunc("/policy", app.handleChangePolicy).Methods(http.MethodPost)
	v1.HandleFunc("/policy", app.handleGetPolicy).Methods(http.MethodGet)

	router.HandleFunc("/health", app.handleHealth).Methods(http.MethodGet)

	return router
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
