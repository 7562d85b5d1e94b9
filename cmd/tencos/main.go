// Package main is the entry point for the tencos command line client.
// It uploads files to Tencent Cloud Object Storage and manages objects and
// multipart sessions from the shell.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/prn-tf/tencos"
	"github.com/prn-tf/tencos/internal/config"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "upload":
		err = runUpload(args)
	case "stat":
		err = runStat(args)
	case "rm":
		err = runDelete(args)
	case "abort":
		err = runAbort(args)
	case "sessions":
		err = runSessions(args)
	case "version":
		fmt.Printf("tencos\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		log.Error().Err(err).Str("command", command).Msg("command failed")
		os.Exit(1)
	}
}

// commonFlags registers the flags every subcommand shares.
func commonFlags(fs *flag.FlagSet) *string {
	return fs.String("config", "", "path to the config file (optional)")
}

// openClient builds the client and starts the ops listener if configured.
func openClient(configPath string) (*tencos.Client, func(), error) {
	client, err := tencos.FromConfigFile(configPath)
	if err != nil {
		return nil, nil, err
	}

	shutdownOps := startOpsListener(configPath, client)
	cleanup := func() {
		shutdownOps()
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("client close failed")
		}
	}
	return client, cleanup, nil
}

// startOpsListener serves /healthz and /metrics when the ops listener is
// enabled in the configuration. Returns a shutdown func; a no-op when the
// listener is disabled.
func startOpsListener(configPath string, client *tencos.Client) func() {
	appCfg, err := config.Load(configPath)
	if err != nil || !appCfg.Ops.Enabled {
		return func() {}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	if collector := client.Metrics(); collector != nil {
		r.Handle(appCfg.Ops.MetricsPath, promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}))
	}

	server := &http.Server{Addr: appCfg.Ops.Addr, Handler: r}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn().Err(err).Str("addr", appCfg.Ops.Addr).Msg("ops listener failed")
		}
	}()
	log.Info().Str("addr", appCfg.Ops.Addr).Msg("ops listener started")

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
}

func runUpload(args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	configPath := commonFlags(fs)
	key := fs.String("key", "", "object key (defaults to the file name)")
	meta := metadataFlag{}
	fs.Var(&meta, "meta", "user metadata as name=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: tencos upload [flags] <file>")
	}
	localPath := fs.Arg(0)

	objectKey := *key
	if objectKey == "" {
		objectKey = filepath.Base(localPath)
	}

	client, cleanup, err := openClient(*configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	url, err := client.Upload(context.Background(), localPath, objectKey, meta.values)
	if err != nil {
		return err
	}
	fmt.Println(url)
	return nil
}

func runStat(args []string) error {
	fs := flag.NewFlagSet("stat", flag.ExitOnError)
	configPath := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: tencos stat [flags] <key>")
	}

	client, cleanup, err := openClient(*configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	metadata, err := client.GetObjectMetadata(context.Background(), fs.Arg(0))
	if err != nil {
		return err
	}
	if len(metadata) == 0 {
		fmt.Println("(no user metadata)")
		return nil
	}
	for name, value := range metadata {
		fmt.Printf("%s: %s\n", name, value)
	}
	return nil
}

func runDelete(args []string) error {
	fs := flag.NewFlagSet("rm", flag.ExitOnError)
	configPath := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: tencos rm [flags] <key>")
	}

	client, cleanup, err := openClient(*configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	return client.DeleteObject(context.Background(), fs.Arg(0))
}

func runAbort(args []string) error {
	fs := flag.NewFlagSet("abort", flag.ExitOnError)
	configPath := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: tencos abort [flags] <key> <upload-id>")
	}

	client, cleanup, err := openClient(*configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	return client.AbortUpload(context.Background(), fs.Arg(0), fs.Arg(1))
}

func runSessions(args []string) error {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	configPath := commonFlags(fs)
	staleOnly := fs.Bool("stale", false, "only sessions still marked initiated")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, cleanup, err := openClient(*configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	sessions, err := client.Sessions(context.Background())
	if err != nil {
		return err
	}

	printed := 0
	for _, s := range sessions {
		if *staleOnly && s.State != "Initiated" {
			continue
		}
		fmt.Printf("%s\t%s\t%s\t%s\n",
			s.ID, s.State, s.InitiatedAt.Format(time.RFC3339), s.Key)
		printed++
	}
	if printed == 0 {
		fmt.Println("no journaled sessions")
	}
	return nil
}

// metadataFlag accumulates repeated -meta name=value pairs.
type metadataFlag struct {
	values map[string]string
}

func (m *metadataFlag) String() string { return fmt.Sprintf("%v", m.values) }

func (m *metadataFlag) Set(raw string) error {
	for i := 0; i < len(raw); i++ {
		if raw[i] == '=' {
			if m.values == nil {
				m.values = make(map[string]string)
			}
			m.values[raw[:i]] = raw[i+1:]
			return nil
		}
	}
	return fmt.Errorf("metadata must be name=value, got %q", raw)
}

func printUsage() {
	fmt.Println(`tencos - Tencent COS upload client

Usage:
  tencos <command> [arguments]

Commands:
  upload      Upload a file (multipart for large files)
  stat        Show an object's user metadata
  rm          Delete an object
  abort       Abort a multipart upload session
  sessions    List journaled multipart sessions
  version     Print version information
  help        Show this help message

Examples:
  tencos upload --key docs/report.pdf --meta owner=ops ./report.pdf
  tencos stat docs/report.pdf
  tencos rm docs/report.pdf
  tencos abort docs/report.pdf 150264022xxxxxxxxxxxxbc7f35b
  tencos sessions --config ./configs/config.yaml

Configuration comes from a YAML file and TENCOS_/TENCENT_ environment
variables. Use "tencos <command> --help" for command flags.`)
}
