package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"

	"github.com/iota-uz/gamesync/modules/catalog/domain/catalog"
	"github.com/iota-uz/gamesync/modules/catalog/infrastructure/spreadsheet"
	"github.com/iota-uz/gamesync/modules/catalog/services"
	"github.com/iota-uz/gamesync/pkg/configuration"
	"github.com/iota-uz/gamesync/pkg/contentful"
	"github.com/iota-uz/gamesync/pkg/contentful/contentfultest"
	"github.com/iota-uz/gamesync/pkg/eventbus"
	"github.com/iota-uz/gamesync/pkg/logging"
)

// runtime is everything a command needs, built once per invocation.
type runtime struct {
	conf    *configuration.Configuration
	log     *logrus.Entry
	catalog *catalog.Catalog
	repo    contentful.Repository
	bus     eventbus.EventBus

	closers []func()
}

func newRuntime(ctx context.Context, g *globalOptions, remote bool) (*runtime, error) {
	conf, err := configuration.Load(g.envFiles)
	if err != nil {
		return nil, withCode(exitUsage, err)
	}
	rt := &runtime{
		conf:    conf,
		log:     logrus.NewEntry(conf.Logger()).WithField("app", "gamesync"),
		closers: []func(){conf.Unload},
	}

	rt.catalog, err = catalog.Load(conf.Sync.CatalogPath)
	if err != nil {
		rt.Close()
		return nil, withCode(exitUsage, err)
	}
	rt.catalog = rt.catalog.WithVentureColumn(conf.Sync.VentureColumn)

	if conf.OpenTelemetry.Enabled {
		rt.closers = append(rt.closers, logging.SetupTracing(ctx, conf.OpenTelemetry.ServiceName, conf.OpenTelemetry.TempoURL))
		rt.log.Info("OpenTelemetry tracing enabled, exporting to " + conf.OpenTelemetry.TempoURL)
	}

	rt.bus = eventbus.New(rt.log)
	rt.bus.Subscribe(func(e *services.NotificationEvent) {
		entry := rt.log.WithField("run_id", e.RunID.String())
		switch e.Level {
		case services.LevelError:
			entry.Error(e.Message)
		case services.LevelWarning:
			entry.Warn(e.Message)
		default:
			entry.Info(e.Message)
		}
	})
	rt.bus.Subscribe(func(e *services.ProgressChangedEvent) {
		rt.log.WithFields(logrus.Fields{"phase": e.Phase, "percent": e.Percent}).Debug("progress")
	})

	if remote {
		rt.repo, err = rt.repository(g)
		if err != nil {
			rt.Close()
			return nil, err
		}
	}
	return rt, nil
}

func (rt *runtime) repository(g *globalOptions) (contentful.Repository, error) {
	if strings.TrimSpace(g.fakeEntries) != "" {
		entries, err := readEntriesFile(g.fakeEntries)
		if err != nil {
			return nil, err
		}
		rt.log.WithField("entries", len(entries)).Warn("using in-memory repository, nothing is written remotely")
		return contentfultest.New(entries...), nil
	}

	c := rt.conf.Contentful
	if err := rt.conf.RequireCredentials(); err != nil {
		return nil, withCode(exitUsage, err)
	}

	var store limiter.Store
	if rt.conf.RateLimit.Enabled {
		if rt.conf.RateLimit.Storage == "redis" {
			s, err := contentful.NewRedisStore(rt.conf.RateLimit.RedisURL)
			if err != nil {
				return nil, withCode(exitUsage, err)
			}
			store = s
		} else {
			store = contentful.NewMemoryStore()
		}
	}

	client, err := contentful.NewClient(contentful.ClientOptions{
		BaseURL:           c.BaseURL,
		SpaceID:           c.SpaceID,
		EnvironmentID:     c.EnvironmentID,
		AccessToken:       c.ManagementToken,
		HTTPClient:        &http.Client{Timeout: c.RequestTimeout},
		RequestIDHeader:   rt.conf.RequestIDHeader,
		MaxRetries:        c.MaxRetries,
		BaseDelay:         c.RetryBaseDelay,
		RequestsPerSecond: rt.conf.RateLimit.RequestsPerSecond,
		Store:             store,
		Logger:            rt.log.WithField("component", "contentful"),
	})
	if err != nil {
		return nil, withCode(exitUsage, err)
	}
	return client, nil
}

func (rt *runtime) syncService(dryRun bool) (*services.SyncService, error) {
	s := rt.conf.Sync
	return services.NewSyncService(services.SyncServiceOptions{
		Repository:   rt.repo,
		Catalog:      rt.catalog,
		ContentType:  rt.conf.Contentful.ContentType,
		Locale:       rt.conf.Contentful.Locale,
		PageSize:     rt.conf.Contentful.PageSize,
		KeyColumn:    s.KeyColumn,
		Currency:     s.BetCurrency,
		ChunkSize:    s.ChunkSize,
		PollInterval: s.PollInterval,
		UpdatePause:  s.UpdatePause,
		DryRun:       dryRun,
		Bus:          rt.bus,
		Logger:       rt.log,
	})
}

func (rt *runtime) readSheet(path, sheet string) (*spreadsheet.Sheet, error) {
	if strings.TrimSpace(path) == "" {
		return nil, withCode(exitUsage, fmt.Errorf("--file is required"))
	}
	s, err := spreadsheet.ReadFile(path, spreadsheet.Options{
		Sheet:    sheet,
		Required: []string{rt.conf.Sync.KeyColumn},
	})
	if err != nil {
		if os.IsNotExist(err) || is(err, spreadsheet.ErrUnsupportedFormat) {
			return nil, withCode(exitUsage, err)
		}
		return nil, withCode(exitValidation, err)
	}
	rt.log.WithFields(logrus.Fields{"file": path, "sheet": s.Name, "rows": len(s.Rows)}).Info("spreadsheet loaded")
	return s, nil
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// readEntriesFile accepts either a management API collection ({"items": [...]})
// or a bare JSON array of entries.
func readEntriesFile(path string) ([]*contentful.Entry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, withCode(exitUsage, fmt.Errorf("read %s: %w", path, err))
	}
	var doc struct {
		Items []*contentful.Entry `json:"items"`
	}
	if err := json.Unmarshal(b, &doc); err == nil && doc.Items != nil {
		return doc.Items, nil
	}
	var items []*contentful.Entry
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, withCode(exitValidation, fmt.Errorf("decode %s: %w", path, err))
	}
	return items, nil
}
