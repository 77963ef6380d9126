package route

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// panicCatcher recovers any panics, sets a 500, and returns an obvious error
func (r *Router) panicCatcher(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if rcvr := recover(); rcvr != nil {
				err, ok := rcvr.(error)

				if !ok {
					err = fmt.Errorf("caught panic: %v", rcvr)
				}

				r.handlerReturnWithError(w, ErrCaughtPanic, err)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

// requestLogger logs one debug line per admin request
func (r *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		arrivalTime := time.Now()
		reqID := uuid.NewString()[:8]

		wrapped := statusRecorder{w, http.StatusOK}
		next.ServeHTTP(&wrapped, req)

		r.Metrics.Increment("admin_requests")
		if wrapped.status >= http.StatusInternalServerError {
			r.Metrics.Increment("admin_request_errors")
		}
		name := ""
		if route := mux.CurrentRoute(req); route != nil {
			name = route.GetName()
		}
		r.Logger.Debug().
			WithString("request_id", reqID).
			WithString("route", name).
			WithString("remote_addr", req.RemoteAddr).
			WithField("duration_ms", float64(time.Since(arrivalTime))/float64(time.Millisecond)).
			WithField("status", wrapped.status).
			Logf("handled %s %s", req.Method, req.URL.String())
	})
}

func (r *Router) setResponseHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		// Set content type header early so it's before any calls to WriteHeader
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, req)
	})
}
