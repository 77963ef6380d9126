package debug

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/honeycombio/firehose/logger"
)

const defaultAddr = "localhost:6060"

// DebugService serves pprof and a set of published variables on a local
// port. It's only started with --debug.
type DebugService struct {
	Logger logger.Logger `inject:""`

	// Addr is tried first; if it's taken the next 9 ports are tried too.
	Addr string

	mux      *http.ServeMux
	urls     []string
	expVars  map[string]any
	mutex    sync.RWMutex
	server   *http.Server
	listener net.Listener
	doneWG   sync.WaitGroup
}

func (s *DebugService) init() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.mux != nil {
		return
	}
	s.expVars = make(map[string]any)
	s.mux = http.NewServeMux()
	// Add to the mux but don't add an index entry.
	s.mux.HandleFunc("/", s.indexHandler)
}

func (s *DebugService) Start() error {
	if s.Logger == nil {
		s.Logger = &logger.NullLogger{}
	}
	if s.Addr == "" {
		s.Addr = defaultAddr
	}
	s.init()

	s.HandleFunc("/debug/pprof/", pprof.Index)
	s.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	s.HandleFunc("/debug/pprof/profile", pprof.Profile)
	s.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	s.HandleFunc("/debug/pprof/trace", pprof.Trace)
	s.HandleFunc("/debug/vars", s.expvarHandler)
	s.Publish("cmdline", os.Args)
	s.Publish("memstats", Func(memstats))

	l, err := listenNear(s.Addr)
	if err != nil {
		return err
	}
	s.listener = l
	s.server = &http.Server{Handler: s.mux, ReadHeaderTimeout: 10 * time.Second}
	s.Logger.Info().Logf("Debug service listening on %s", l.Addr())

	s.doneWG.Add(1)
	go func() {
		defer s.doneWG.Done()
		if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Warn().WithField("error", err.Error()).Logf("debug http server error")
		}
	}()
	return nil
}

// listenNear prefers addr, but will try to bind to the next 9 ports in case
// several processes run on the same host.
func listenNear(addr string) (net.Listener, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid debug port %q", portStr)
	}
	if port == 0 {
		return net.Listen("tcp", addr)
	}
	for i := 0; ; i++ {
		l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port+i)))
		if err == nil {
			return l, nil
		}
		if i == 9 || !errors.Is(err, syscall.EADDRINUSE) {
			return nil, err
		}
	}
}

// ListenAddr is the address actually bound.
func (s *DebugService) ListenAddr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *DebugService) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.server.Shutdown(ctx)
	s.doneWG.Wait()
	return err
}

// Use Handle and HandleFunc to add new services on the internal debugging port.
func (s *DebugService) Handle(pattern string, handler http.Handler) {
	s.init()
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.urls = append(s.urls, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *DebugService) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.Handle(pattern, http.HandlerFunc(handler))
}

// Publish an expvar at /debug/vars, possibly using Func. It may be called
// before Start.
func (s *DebugService) Publish(name string, v any) {
	s.init()
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, existing := s.expVars[name]; existing {
		panic("reuse of exported var name: " + name)
	}
	s.expVars[name] = v
}

func (s *DebugService) indexHandler(w http.ResponseWriter, req *http.Request) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if err := indexTmpl.Execute(w, s.urls); err != nil {
		s.Logger.Warn().WithField("error", err.Error()).Logf("error rendering debug index")
	}
}

var indexTmpl = template.Must(template.New("index").Parse(`
<html>
<head>
<title>Debug Index</title>
</head>
<body>
<h2>Index</h2>
<table>
{{range .}}
<tr><td><a href="{{.}}?debug=1">{{.}}</a>
{{end}}
</table>
</body>
</html>
`))

func (s *DebugService) expvarHandler(w http.ResponseWriter, r *http.Request) {
	s.mutex.RLock()
	values := make(map[string]any, len(s.expVars))
	for k, v := range s.expVars {
		values[k] = v
	}
	s.mutex.RUnlock()

	for k, v := range values {
		if f, ok := v.(Func); ok {
			values[k] = f()
		}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	b, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(values, "", "  ")
	if err != nil {
		s.Logger.Warn().WithField("error", err.Error()).Logf("error encoding expvars")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Write(b)
}

func memstats() any {
	stats := new(runtime.MemStats)
	runtime.ReadMemStats(stats)
	return *stats
}

// Func is evaluated each time /debug/vars is served.
type Func func() any
