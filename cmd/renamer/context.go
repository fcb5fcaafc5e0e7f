package main

import (
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/maxgarvey/show_renamer/artwork"
	"github.com/maxgarvey/show_renamer/config"
	"github.com/maxgarvey/show_renamer/logging"
	"github.com/maxgarvey/show_renamer/renamer"
	"github.com/maxgarvey/show_renamer/store"
	"github.com/maxgarvey/show_renamer/tmdb"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	metaOnce sync.Once
	meta     *tmdb.Client
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, c.configErr = config.Load(path)
	})
	return c.config, c.configErr
}

func (c *commandContext) logger(w io.Writer) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return logging.New(w, cfg.Logging.Format, cfg.Logging.Level)
}

func (c *commandContext) openStore() (*store.SQLiteStore, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return store.NewSQLite(cfg.Server.DBPath)
}

func (c *commandContext) metadata() (*tmdb.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	c.metaOnce.Do(func() {
		c.meta = tmdb.New(tmdb.Options{
			APIKey:   cfg.TMDB.APIKey,
			Language: cfg.TMDB.Language,
			CacheTTL: cfg.CacheTTL(),
			Timeout:  cfg.RequestTimeout(),
		})
	})
	return c.meta, nil
}

func (c *commandContext) processor(logger *slog.Logger) (*renamer.Processor, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	meta, err := c.metadata()
	if err != nil {
		return nil, err
	}
	order, err := renamer.ParseSeasonSort(cfg.Library.SeasonSort)
	if err != nil {
		return nil, err
	}
	return &renamer.Processor{
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
	}, nil
}

func (c *commandContext) lockDir() string {
	return filepath.Join(c.config.Server.DataDir, "locks")
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
