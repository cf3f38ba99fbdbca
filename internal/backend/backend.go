// Package backend assembles the gateway selected by the configuration: a row store
// (graphql, sqlite or memory) joined with a change feed (redis or in-process).
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/h0rv/opsdash/internal/auth"
	"github.com/h0rv/opsdash/internal/config"
	"github.com/h0rv/opsdash/internal/feed"
	"github.com/h0rv/opsdash/internal/gateway"
	"github.com/h0rv/opsdash/internal/gateway/graphql"
	"github.com/h0rv/opsdash/internal/gateway/memory"
	"github.com/h0rv/opsdash/internal/gateway/sqlite"
)

// changeFeed is both halves of a feed: stores announce writes, controllers subscribe.
type changeFeed interface {
	feed.Publisher
	gateway.Feed
}

// Backend is an open gateway and the resources behind it.
type Backend struct {
	gateway.Gateway
	closers []func() error
}

// Open builds the gateway described by cfg. Close releases it.
func Open(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*Backend, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	b := &Backend{}

	changes, err := b.openFeed(ctx, cfg.Feed, log)
	if err != nil {
		return nil, err
	}

	var store gateway.Store
	switch cfg.Backend {
	case config.BackendGraphQL:
		key, err := auth.GetKey(keyProviders(cfg)...)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		store, err = graphql.New(graphql.Config{
			Endpoint:  cfg.GraphQL.Endpoint,
			APIKey:    key,
			PageLimit: cfg.Search.PageSize,
			Log:       log.WithField("backend", "graphql"),
		})
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("create graphql client: %w", err)
		}
	case config.BackendSQLite:
		s, err := sqlite.Open(cfg.SQLite.Path, changes)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.closers = append(b.closers, s.Close)
		store = s
	case config.BackendMemory:
		store = memory.New(changes)
	default:
		_ = b.Close()
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	if cfg.Backend == config.BackendGraphQL && cfg.Feed.Kind != config.FeedRedis {
		log.Warn("graphql backend with the local feed: changes made by other clients will not appear until a manual refresh; set feed.kind to redis")
	}

	b.Gateway = gateway.Compose(store, changes)
	log.WithFields(logrus.Fields{"backend": cfg.Backend, "feed": cfg.Feed.Kind}).Info("backend ready")
	return b, nil
}

func (b *Backend) openFeed(ctx context.Context, cfg config.FeedConfig, log logrus.FieldLogger) (changeFeed, error) {
	if cfg.Kind != config.FeedRedis {
		return feed.NewHub(), nil
	}
	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	b.closers = append(b.closers, rc.Close)
	return feed.NewRedis(rc, cfg.ChannelPrefix, log.WithField("feed", "redis")), nil
}

// keyProviders lists the key sources in lookup order: environment, key command, key file.
func keyProviders(cfg *config.Config) []auth.KeyProvider {
	providers := []auth.KeyProvider{auth.EnvProvider{Var: auth.EnvVar}}
	if cfg.Auth.KeyCommand != "" {
		providers = append(providers, auth.CommandProvider{Command: cfg.Auth.KeyCommand})
	}
	return append(providers, auth.FileProvider{Path: cfg.APIKeyPath()})
}

// Close releases the backend's connections, newest first.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	b.closers = nil
	return errors.Join(errs...)
}
