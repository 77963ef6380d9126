package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "go.uber.org/automaxprocs"

	"github.com/facebookgo/inject"
	"github.com/facebookgo/startstop"
	"github.com/jessevdk/go-flags"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/honeycombio/firehose/app"
	"github.com/honeycombio/firehose/config"
	"github.com/honeycombio/firehose/internal/health"
	"github.com/honeycombio/firehose/logger"
	"github.com/honeycombio/firehose/metrics"
	"github.com/honeycombio/firehose/pubsub"
	"github.com/honeycombio/firehose/route"
	"github.com/honeycombio/firehose/service/debug"
)

// set by the build.
var BuildID string
var version string

type graphLogger struct {
}

func (g graphLogger) Debugf(format string, v ...interface{}) {
	fmt.Fprintf(os.Stderr, format, v...)
	fmt.Fprintln(os.Stderr)
}

func main() {
	opts, err := config.NewCmdEnvOptions(os.Args)
	if err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Printf("Command line parsing error '%s' -- call with --help for usage.\n", err)
		os.Exit(1)
	}

	if BuildID == "" {
		version = "dev"
	} else {
		version = BuildID
	}

	if opts.Version {
		fmt.Println("Version: " + version)
		os.Exit(0)
	}

	c, err := config.NewConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
	if opts.Validate {
		fmt.Println("Config validated successfully.")
		os.Exit(0)
	}

	lgr := logger.GetLoggerImplementation(c)
	if err := lgr.SetLevel(c.GetLoggerLevel().String()); err != nil {
		fmt.Fprintf(os.Stderr, "unable to set logging level: %v\n", err)
		os.Exit(1)
	}

	var pubsubber pubsub.PubSub
	switch ptype := c.GetPublisherConfig().Type; ptype {
	case "local":
		pubsubber = &pubsub.LocalPubSub{}
	case "redis":
		// records are also visible to other processes subscribed to the
		// same Redis channels
		pubsubber = &pubsub.GoRedisPubSub{}
	default:
		// this should have been caught by validation
		panic("invalid config option 'Publisher.Type'")
	}

	// Prometheus is started ahead of the graph so its registry exists before
	// anything registers through the metrics singleton.
	metricsSingleton := metrics.NewMultiMetrics()
	var router *route.Router
	if c.GetPrometheusMetricsConfig().Enabled {
		promMetrics := &metrics.PromMetrics{Config: c}
		if err := promMetrics.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start prometheus metrics: %v\n", err)
			os.Exit(1)
		}
		metricsSingleton.AddChild(promMetrics)
		router = &route.Router{MetricsHandler: promMetrics.Handler()}
		router.SetVersion(version)
	}

	a := app.App{
		Version: version,
	}

	var g inject.Graph
	if opts.Debug {
		g.Logger = graphLogger{}
	}
	objects := []*inject.Object{
		{Value: c},
		{Value: lgr},
		{Value: pubsubber},
		{Value: clockwork.NewRealClock()},
		{Value: metricsSingleton, Name: "metrics"},
		{Value: &health.Health{}},
		{Value: &a},
	}
	if router != nil {
		objects = append(objects, &inject.Object{Value: router})
	}
	if opts.Debug {
		debugService := &debug.DebugService{}
		debugService.Publish("streams", debug.Func(func() any {
			states := make(map[string]map[string]any)
			for _, s := range a.Streams() {
				states[s.Name()] = map[string]any{
					"state":      s.State().String(),
					"reconnects": s.Reconnects(),
				}
			}
			return states
		}))
		objects = append(objects, &inject.Object{Value: debugService})
	}
	if err := g.Provide(objects...); err != nil {
		fmt.Fprintf(os.Stderr, "failed to provide injection graph. error: %+v\n", err)
		os.Exit(1)
	}
	if err := g.Populate(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to populate injection graph. error: %+v\n", err)
		os.Exit(1)
	}

	// the logger provided to startstop must be valid before any service is
	// started, meaning it can't rely on injected configs. make a custom logger
	// just for this step
	ststLogger := logrus.New()
	ststLogger.SetLevel(logrus.InfoLevel)
	if opts.Debug {
		ststLogger.SetLevel(logrus.DebugLevel)
	}

	defer startstop.Stop(g.Objects(), ststLogger)
	if err := startstop.Start(g.Objects(), ststLogger); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start injected dependencies. error: %+v\n", err)
		os.Exit(1)
	}

	// set up signal channel to exit
	sigsToExit := make(chan os.Signal, 1)
	signal.Notify(sigsToExit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigsToExit:
		a.Logger.Info().Logf("Caught signal \"%s\"", sig)
	case <-a.Done():
		a.Logger.Info().Logf("all streams have stopped, exiting")
	}
}
