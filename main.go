package main

import (
	"context"
	"embed"
	"errors"
	"flag"
	"html/template"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/grandcat/zeroconf"

	"github.com/maxgarvey/show_renamer/artwork"
	"github.com/maxgarvey/show_renamer/config"
	"github.com/maxgarvey/show_renamer/jobs"
	"github.com/maxgarvey/show_renamer/logging"
	"github.com/maxgarvey/show_renamer/renamer"
	"github.com/maxgarvey/show_renamer/store"
	"github.com/maxgarvey/show_renamer/tmdb"
)

//go:embed templates/*
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// metaSource is the metadata lookups the HTTP handlers need.
type metaSource interface {
	Search(ctx context.Context, query string) ([]tmdb.SearchResult, error)
	Show(ctx context.Context, id int) (tmdb.Show, error)
	Season(ctx context.Context, showID, season int) (tmdb.Season, error)
}

// jobStarter launches background folder runs.
type jobStarter interface {
	Start(ctx context.Context, req jobs.Request) (store.Job, error)
}

type server struct {
	root          string
	meta          metaSource
	jobs          jobStarter
	store         store.Store
	matchStrategy string
	writeTags     bool
	port          string
	logger        *slog.Logger
}

func main() {
	configPath := flag.String("config", os.Getenv("SHOW_RENAMER_CONFIG"), "path to TOML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(os.Stderr, cfg.Logging.Format, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewSQLite(cfg.Server.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	order, err := renamer.ParseSeasonSort(cfg.Library.SeasonSort)
	if err != nil {
		return err
	}
	meta := tmdb.New(tmdb.Options{
		APIKey:   cfg.TMDB.APIKey,
		Language: cfg.TMDB.Language,
		CacheTTL: cfg.CacheTTL(),
		Timeout:  cfg.RequestTimeout(),
	})
	proc := &renamer.Processor{
		Source: meta,
		Images: &artwork.Downloader{
			BaseURL: cfg.TMDB.ImageBaseURL,
			Size:    cfg.TMDB.ImageSize,
			HTTP:    &http.Client{Timeout: cfg.RequestTimeout()},
			Logger:  logger,
		},
		Tagger:     renamer.FFmpegTagger{},
		SeasonSort: order,
		Logger:     logger,
	}
	manager := jobs.NewManager(context.Background(), st, proc,
		filepath.Join(cfg.Server.DataDir, "locks"), logger)
	if n, err := manager.RecoverStale(ctx); err != nil {
		logger.Warn("recover stale jobs", "error", err)
	} else if n > 0 {
		logger.Warn("marked interrupted jobs as failed", "count", n)
	}

	srv := &server{
		root:          cfg.Library.RootPath,
		meta:          meta,
		jobs:          manager,
		store:         st,
		matchStrategy: cfg.Library.MatchStrategy,
		writeTags:     cfg.Library.WriteTags,
		port:          cfg.Server.Port,
		logger:        logger,
	}
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Server.MDNS {
		if mdns, err := advertise(cfg.Server.Port); err != nil {
			logger.Warn("mdns advertisement failed", "error", err)
		} else {
			defer mdns.Shutdown()
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	logger.Info("starting server", "url", "http://localhost:"+cfg.Server.Port, "root", cfg.Library.RootPath)
	for _, addr := range localAddresses(cfg.Server.Port) {
		logger.Info("listening on LAN", "url", addr)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			manager.Shutdown()
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	manager.Shutdown()
	return nil
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/info", s.handleInfo)

	r.Route("/api", func(r chi.Router) {
		r.Get("/folders", s.handleFolders)
		r.Get("/search", s.handleSearch)
		r.Get("/show/{id}", s.handleShow)
		r.Get("/show/{id}/season/{season}", s.handleSeason)
		r.Post("/process", s.handleProcess)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
	})

	return r
}

// advertise registers the UI as an HTTP service on the local network.
func advertise(port string) (*zeroconf.Server, error) {
	p, err := strconv.Atoi(port)
	if err != nil {
		return nil, err
	}
	host, _ := os.Hostname()
	if host == "" {
		host = "show_renamer"
	}
	return zeroconf.Register("show_renamer on "+host, "_http._tcp", "local.", p, []string{"path=/"}, nil)
}

// localAddresses returns http:// URLs for each non-loopback IPv4 address
// on the machine, using the given port.
func localAddresses(port string) []string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var result []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil || ip.IsLoopback() || ip.To4() == nil {
				continue
			}
			result = append(result, "http://"+ip.String()+":"+port)
		}
	}
	return result
}
