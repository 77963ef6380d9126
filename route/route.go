// Package route serves the admin endpoints: liveness and readiness for
// orchestrators, per-stream status and Prometheus metrics.
package route

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"

	"github.com/honeycombio/firehose/config"
	"github.com/honeycombio/firehose/internal/health"
	"github.com/honeycombio/firehose/logger"
	"github.com/honeycombio/firehose/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Router struct {
	Config  config.Config   `inject:""`
	Logger  logger.Logger   `inject:""`
	Health  health.Reporter `inject:""`
	Metrics metrics.Metrics `inject:"metrics"`

	// MetricsHandler, when set, is mounted at /metrics.
	MetricsHandler http.Handler

	// version is set on startup so that the router may answer HTTP requests for
	// the version
	versionStr string

	server   *http.Server
	listener net.Listener
	doneWG   sync.WaitGroup
}

var routerMetrics = []metrics.Metadata{
	{Name: "admin_requests", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "requests served by the admin router"},
	{Name: "admin_request_errors", Type: metrics.Counter, Unit: metrics.Dimensionless, Description: "admin requests that failed"},
}

func (r *Router) SetVersion(ver string) {
	r.versionStr = ver
}

// Handler builds the admin routes. Start serves them; tests use them directly.
func (r *Router) Handler() http.Handler {
	r.setDefaults()
	muxxer := mux.NewRouter()

	muxxer.Use(r.setResponseHeaders)
	muxxer.Use(r.requestLogger)
	muxxer.Use(r.panicCatcher)

	get := muxxer.Methods("GET").Subrouter()
	get.HandleFunc("/alive", r.alive).Name("liveness")
	get.HandleFunc("/ready", r.ready).Name("readiness")
	get.HandleFunc("/streams", r.streams).Name("stream status")
	get.HandleFunc("/version", r.version).Name("report version info")
	if r.MetricsHandler != nil {
		get.Handle("/metrics", r.MetricsHandler).Name("prometheus metrics")
	}
	return muxxer
}

// Start listens on the configured admin address and serves in the background.
func (r *Router) Start() error {
	r.setDefaults()
	for _, m := range routerMetrics {
		r.Metrics.Register(m)
	}

	listenAddr := r.Config.GetPrometheusMetricsConfig().ListenAddr
	l, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	r.listener = l
	r.server = &http.Server{
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	r.Logger.Info().Logf("admin endpoints listening on %s", l.Addr())

	r.doneWG.Add(1)
	go func() {
		defer r.doneWG.Done()

		err := r.server.Serve(l)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.Logger.Error().Logf("failed to serve admin endpoints: %s", err)
		}
	}()
	return nil
}

func (r *Router) setDefaults() {
	if r.Metrics == nil {
		r.Metrics = &metrics.NullMetrics{}
	}
	if r.Logger == nil {
		r.Logger = &logger.NullLogger{}
	}
}

// Addr is the address actually listened on, useful when the configured port
// was 0.
func (r *Router) Addr() string {
	if r.listener == nil {
		return ""
	}
	return r.listener.Addr().String()
}

func (r *Router) Stop() error {
	if r.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := r.server.Shutdown(ctx)
	if err != nil {
		return err
	}
	r.doneWG.Wait()
	return nil
}

func (r *Router) alive(w http.ResponseWriter, req *http.Request) {
	r.Logger.Debug().Logf("answered /alive check")
	r.answerHealth(w, "alive", r.Health.IsAlive())
}

func (r *Router) ready(w http.ResponseWriter, req *http.Request) {
	r.Logger.Debug().Logf("answered /ready check")
	r.answerHealth(w, "ready", r.Health.IsReady())
}

func (r *Router) answerHealth(w http.ResponseWriter, field string, ok bool) {
	answer := "yes"
	if !ok {
		answer = "no"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	w.Write([]byte(`{"source":"firehose","` + field + `":"` + answer + `"}`))
}

type streamsResponse struct {
	Source  string          `json:"source"`
	Streams map[string]bool `json:"streams"`
}

func (r *Router) streams(w http.ResponseWriter, req *http.Request) {
	body, err := json.Marshal(streamsResponse{Source: "firehose", Streams: r.Health.Status()})
	if err != nil {
		r.handlerReturnWithError(w, ErrJSONBuildFailed, err)
		return
	}
	w.Write(body)
}

func (r *Router) version(w http.ResponseWriter, req *http.Request) {
	w.Write([]byte(`{"source":"firehose","version":"` + r.versionStr + `"}`))
}
