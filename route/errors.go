package route

import (
	"net/http"
)

type handlerError struct {
	// err is the error that we're throwing
	err error
	// msg is the human-readable context with which we're throwing the error
	msg string
	// status is the HTTP status code we should return
	status int
	// detailed is whether the err itself should be included in the msg response
	detailed bool
}

var (
	ErrJSONBuildFailed = handlerError{nil, "failed to build JSON response", http.StatusInternalServerError, false}
	ErrCaughtPanic     = handlerError{nil, "caught panic", http.StatusInternalServerError, false}
)

func (r *Router) handlerReturnWithError(w http.ResponseWriter, he handlerError, err error) {
	if err != nil {
		he.err = err
	}
	entry := r.Logger.Error().WithField("status", he.status)
	if he.err != nil {
		entry = entry.WithField("error", he.err.Error())
	}
	entry.Logf("returning error: %s", he.msg)

	w.WriteHeader(he.status)
	errmsg := he.msg
	if he.detailed && he.err != nil {
		errmsg = he.msg + ": " + he.err.Error()
	}
	body, _ := json.Marshal(map[string]string{"error": errmsg})
	w.Write(body)
}
