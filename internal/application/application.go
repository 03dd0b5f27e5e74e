package application

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eugenenazirov/configcache"
	"github.com/eugenenazirov/configcache/internal/config"
)

// Request names the documents to print.
type Request struct {
	// Files to load; empty selects the configured base name.
	Files []string
	// ShapeFile, when set, is a JSON or YAML file whose keys bound the
	// allowed keys of every document.
	ShapeFile string
	Subkey    string
}

// App encapsulates the command dependencies.
type App struct {
	cfg    config.Config
	cache  *configcache.Cache
	logger *zap.Logger
	out    io.Writer
}

// New initializes the application from the provided settings.
func New(cfg config.Config, logger *zap.Logger, out io.Writer) *App {
	opts := append(cfg.CacheOptions(), configcache.WithLogger(logger))
	return &App{
		cfg:    cfg,
		cache:  configcache.New(opts...),
		logger: logger,
		out:    out,
	}
}

// Cache returns the underlying configuration cache.
func (a *App) Cache() *configcache.Cache {
	return a.cache
}

// Run prints the requested documents once. With a watch interval configured
// it keeps polling and prints every document that was reloaded, until ctx is
// cancelled.
func (a *App) Run(ctx context.Context, req Request) error {
	docs, err := a.Snapshot(ctx, req)
	if err != nil {
		return err
	}
	if err := a.print(docs); err != nil {
		return err
	}
	if a.cfg.WatchInterval <= 0 {
		return nil
	}
	return a.watch(ctx, req, docs)
}

// Snapshot loads all requested documents through the cache, concurrently.
// Results keep the order of req.Files.
func (a *App) Snapshot(ctx context.Context, req Request) ([]*configcache.Document, error) {
	files := req.Files
	if len(files) == 0 {
		files = []string{""}
	}

	var shape *configcache.Shape
	if req.ShapeFile != "" {
		s, err := a.loadShape(req.ShapeFile)
		if err != nil {
			return nil, err
		}
		shape = &s
	}

	docs := make([]*configcache.Document, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := a.get(file, shape, req.Subkey)
			if err != nil {
				return err
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

func (a *App) get(file string, shape *configcache.Shape, subkey string) (*configcache.Document, error) {
	if shape != nil {
		return a.cache.CheckedInstance(*shape, file, subkey)
	}
	if subkey != "" {
		return a.cache.SubInstance(file, subkey)
	}
	return a.cache.Instance(file)
}

func (a *App) loadShape(path string) (configcache.Shape, error) {
	doc, err := a.cache.Get(path, nil, "")
	if err != nil {
		return configcache.Shape{}, fmt.Errorf("load shape: %w", err)
	}
	return configcache.ShapeOf(doc)
}

func (a *App) watch(ctx context.Context, req Request, docs []*configcache.Document) error {
	lastRead := make([]time.Time, len(docs))
	for i, doc := range docs {
		lastRead[i] = doc.LastReadAt()
	}

	ticker := time.NewTicker(a.cfg.WatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		current, err := a.Snapshot(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			a.logger.Warn("config refresh failed", zap.Error(err))
			continue
		}

		var changed []*configcache.Document
		for i, doc := range current {
			if readAt := doc.LastReadAt(); !readAt.Equal(lastRead[i]) {
				lastRead[i] = readAt
				changed = append(changed, doc)
			}
		}
		if len(changed) == 0 {
			continue
		}
		a.logger.Info("config reloaded", zap.Int("documents", len(changed)))
		if err := a.print(changed); err != nil {
			return err
		}
	}
}

func (a *App) print(docs []*configcache.Document) error {
	for _, doc := range docs {
		raw, err := doc.MarshalJSON()
		if err != nil {
			return fmt.Errorf("encode %s: %w", doc.ConfigFile(), err)
		}
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err != nil {
			return fmt.Errorf("indent %s: %w", doc.ConfigFile(), err)
		}
		buf.WriteByte('\n')
		if _, err := a.out.Write(buf.Bytes()); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	return nil
}
