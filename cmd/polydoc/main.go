// Copyright 2021 FerretDB Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/FerretDB/polydoc/build/version"
	"github.com/FerretDB/polydoc/internal/backends/registry"
	"github.com/FerretDB/polydoc/internal/util/ctxutil"
	"github.com/FerretDB/polydoc/internal/util/debugbuild"
	"github.com/FerretDB/polydoc/internal/util/logging"
	"github.com/FerretDB/polydoc/internal/util/must"
	"github.com/FerretDB/polydoc/internal/util/state"
)

// RemoteFlags represents flags of commands that call a remote provider.
//
//nolint:lll // some tags are long
type RemoteFlags struct {
	Address    string `required:""        help:"Server engine address, like 'http://127.0.0.1:8090'."`
	ProviderID uint16 `default:"0"        help:"Provider id."                                          name:"provider-id"`
	Backend    string `default:"${default_backend}" help:"${help_backend}"`
}

// The cli struct represents all command-line commands, fields and flags.
// It's used for parsing the user input.
//
// Keep order in sync with documentation.
//
//nolint:lll,vet // some tags are long; for readability
var cli struct {
	StateDir string `default:"."               help:"Process state directory."`

	Log struct {
		Level  string `default:"${default_log_level}" help:"${help_log_level}"`
		Format string `default:"console"              help:"${help_log_format}"                     enum:"${enum_log_format}"`
		UUID   bool   `default:"false"                help:"Add instance UUID to all log messages." negatable:""`
	} `embed:"" prefix:"log-"`

	MetricsUUID bool `default:"false" help:"Add instance UUID to all metrics." negatable:""`

	Serve struct {
		ListenAddr           string   `default:"127.0.0.1:8090" help:"Listen TCP address for RPC calls."`
		DebugAddr            string   `default:"127.0.0.1:8088" help:"Listen address for HTTP handlers for metrics, pprof, etc."`
		OTLPEndpoint         string   `default:""               help:"OpenTelemetry OTLP/HTTP endpoint for traces, like '127.0.0.1:4318'." name:"otlp-endpoint"`
		Provider             []string `required:""              help:"Provider in the form 'backend:id[:config]'; config is JSON text or '@file'."`
		PoolSize             int      `default:"0"              help:"Maximal number of concurrently handled calls; 0 means 4 * GOMAXPROCS."`
		EnableRemoteShutdown bool     `default:"false"          help:"Allow 'admin shutdown' command."`
	} `cmd:"" help:"Run server with providers."`

	Admin struct {
		RemoteFlags `embed:""`

		Token string `default:"" help:"Security token."`

		Create struct {
			Name   string `arg:"" help:"Database name."`
			Type   string `default:"" help:"Database type; empty means the backend's default."`
			Config string `default:"{}" help:"Database configuration as JSON text or '@file'."`
		} `cmd:"" help:"Create a new database."`

		Attach struct {
			Name   string `arg:"" help:"Database name."`
			Type   string `default:"" help:"Database type; empty means the backend's default."`
			Config string `default:"{}" help:"Database configuration as JSON text or '@file'."`
		} `cmd:"" help:"Attach an existing database."`

		Detach struct {
			Name string `arg:"" help:"Database name."`
		} `cmd:"" help:"Detach database, keeping its storage."`

		Destroy struct {
			Name string `arg:"" help:"Database name."`
		} `cmd:"" help:"Destroy database with all its storage."`

		List struct{} `cmd:"" help:"List attached databases."`

		Shutdown struct{} `cmd:"" help:"Shut down the server."`
	} `cmd:"" help:"Manage databases."`

	Doc struct {
		RemoteFlags `embed:""`

		Database   string `required:"" help:"Database name."`
		Collection string `required:"" help:"Collection name; created if it does not exist."`
		Commit     bool   `default:"false" help:"Flush changes to durable storage."`

		Store struct {
			Document string `arg:"" help:"Document as JSON text."`
		} `cmd:"" help:"Store a new document and print its record id."`

		Fetch struct {
			ID uint64 `arg:"" help:"Record id."`
		} `cmd:"" help:"Print the document with the given record id."`

		All struct{} `cmd:"" help:"Print all records."`

		Size struct{} `cmd:"" help:"Print the number of records."`
	} `cmd:"" help:"Access documents."`

	Version struct{} `cmd:"" help:"Print version to stdout and exit."`
}

// Additional variables for the kong parsers.
var (
	logLevels = []string{
		zap.DebugLevel.String(),
		zap.InfoLevel.String(),
		zap.WarnLevel.String(),
		zap.ErrorLevel.String(),
	}

	logFormats = []string{"console", "json"}

	kongOptions = []kong.Option{
		kong.Vars{
			"default_backend":   "sql",
			"default_log_level": defaultLogLevel().String(),

			"enum_log_format": strings.Join(logFormats, ","),

			"help_backend":    fmt.Sprintf("Backend: '%s'.", strings.Join(registry.Backends(), "', '")),
			"help_log_format": fmt.Sprintf("Log format: '%s'.", strings.Join(logFormats, "', '")),
			"help_log_level":  fmt.Sprintf("Log level: '%s'.", strings.Join(logLevels, "', '")),
		},
		kong.DefaultEnvars("POLYDOC"),
	}
)

func main() {
	kongCtx := kong.Parse(&cli, kongOptions...)

	run(kongCtx.Command())
}

// defaultLogLevel returns the default log level.
func defaultLogLevel() zapcore.Level {
	if version.Get().DebugBuild {
		return zap.DebugLevel
	}

	return zap.InfoLevel
}

// setupState setups state provider.
func setupState() *state.Provider {
	var f string

	// https://github.com/alecthomas/kong/issues/389
	if cli.StateDir != "" && cli.StateDir != "-" {
		var err error
		if f, err = filepath.Abs(filepath.Join(cli.StateDir, "state.json")); err != nil {
			log.Fatalf("Failed to get path for state file: %s.", err)
		}
	}

	sp, err := state.NewProvider(f)
	if err != nil {
		log.Fatalf("Failed to create state provider: %s.", err)
	}

	return sp
}

// setupMetrics setups Prometheus metrics registerer with some metrics.
func setupMetrics(stateProvider *state.Provider) prometheus.Registerer {
	r := prometheus.DefaultRegisterer
	m := stateProvider.MetricsCollector(true)

	// we don't do it by default due to
	// https://prometheus.io/docs/instrumenting/writing_exporters/#target-labels-not-static-scraped-labels
	if cli.MetricsUUID {
		r = prometheus.WrapRegistererWith(
			prometheus.Labels{"uuid": stateProvider.Get().UUID},
			prometheus.DefaultRegisterer,
		)
		m = stateProvider.MetricsCollector(false)
	}

	r.MustRegister(m)

	return r
}

// setupLogger setups zap logger.
func setupLogger(stateProvider *state.Provider, format string) *zap.Logger {
	info := version.Get()

	startupFields := []zap.Field{
		zap.String("version", info.Version),
		zap.String("commit", info.Commit),
		zap.Bool("dirty", info.Dirty),
		zap.Bool("debugBuild", info.DebugBuild),
		zap.Any("buildEnvironment", info.BuildEnvironment),
	}
	logUUID := stateProvider.Get().UUID

	// Similarly to Prometheus, unless requested, don't add UUID to all messages, but log it once at startup.
	if !cli.Log.UUID {
		startupFields = append(startupFields, zap.String("uuid", logUUID))
		logUUID = ""
	}

	level, err := zapcore.ParseLevel(cli.Log.Level)
	if err != nil {
		log.Fatal(err)
	}

	l, err := logging.Setup(level, format, logUUID)
	if err != nil {
		log.Fatal(err)
	}

	l.Debug("Starting polydoc "+info.Version+"...", startupFields...)

	if debugbuild.Enabled {
		l.Info("This is debug build. The performance will be affected.")
	}

	return l
}

// dumpMetrics dumps all Prometheus metrics to stderr.
func dumpMetrics() {
	mfs := must.NotFail(prometheus.DefaultGatherer.Gather())

	for _, mf := range mfs {
		must.NotFail(expfmt.MetricFamilyToText(os.Stderr, mf))
	}
}

// printVersion prints version information to stdout.
func printVersion() {
	info := version.Get()

	fmt.Fprintln(os.Stdout, "version:", info.Version)
	fmt.Fprintln(os.Stdout, "commit:", info.Commit)
	fmt.Fprintln(os.Stdout, "dirty:", info.Dirty)
	fmt.Fprintln(os.Stdout, "debugBuild:", info.DebugBuild)
}

// run sets up environment based on provided flags and runs the given command.
func run(cmd string) {
	// to increase a chance of resource finalizers to spot problems
	if debugbuild.Enabled {
		defer func() {
			runtime.GC()
			runtime.GC()
		}()
	}

	if cmd == "version" {
		printVersion()
		return
	}

	stateProvider := setupState()

	logger := setupLogger(stateProvider, cli.Log.Format)

	ctx, stop := ctxutil.SigTerm(context.Background())
	defer stop()

	var err error

	switch cmd {
	case "serve":
		// safe to always enable
		runtime.SetBlockProfileRate(10000)

		if _, err = maxprocs.Set(maxprocs.Logger(logger.Sugar().Debugf)); err != nil {
			logger.Sugar().Warnf("Failed to set GOMAXPROCS: %s.", err)
		}

		metricsRegisterer := setupMetrics(stateProvider)

		err = serve(ctx, &serveParams{
			stateProvider: stateProvider,
			registerer:    metricsRegisterer,
			l:             logger,
		})

		if version.Get().DebugBuild {
			dumpMetrics()
		}

	case "admin create <name>",
		"admin attach <name>",
		"admin detach <name>",
		"admin destroy <name>",
		"admin list",
		"admin shutdown":
		err = admin(ctx, strings.TrimPrefix(cmd, "admin "), os.Stdout, logger)

	case "doc store <document>",
		"doc fetch <id>",
		"doc all",
		"doc size":
		err = doc(ctx, strings.TrimPrefix(cmd, "doc "), os.Stdout, logger)

	default:
		err = fmt.Errorf("unknown command: %s", cmd)
	}

	if err != nil {
		logger.Sugar().Fatal(err)
	}
}
