package cache

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/graphkeep/internal/config"
	"github.com/seantiz/graphkeep/internal/registry"
)

type provideOptions struct {
	factories  Factories
	registerer prometheus.Registerer
	logger     *slog.Logger
}

// ProvideOption configures Provide.
type ProvideOption func(*provideOptions)

// WithFactories makes named loaders, writers, eviction managers and listeners
// available to cache nodes.
func WithFactories(f Factories) ProvideOption {
	return func(o *provideOptions) { o.factories = f }
}

// WithRegisterer exports the cache's statistics to r.
func WithRegisterer(r prometheus.Registerer) ProvideOption {
	return func(o *provideOptions) { o.registerer = r }
}

// WithLogger sets the logger handed to the cache.
func WithLogger(l *slog.Logger) ProvideOption {
	return func(o *provideOptions) { o.logger = l }
}

// Key returns the registry key of the cache name configured at nodePath.
func Key[K comparable, V any](name, nodePath string) registry.Key {
	if nodePath == "" {
		nodePath = DefaultNodePath
	}
	return registry.NewKey(registry.TypeOf[*Typed[K, V]](), name, nodePath)
}

// Provide returns the shared cache called name configured by the node at
// nodePath, creating it on first use. An empty nodePath selects the default
// cache node, which may be absent. Releasing the key closes the cache.
func Provide[K comparable, V any](ctx context.Context, reg *registry.Registry, resolver *config.Resolver, name, nodePath string, opts ...ProvideOption) (*Typed[K, V], error) {
	o := provideOptions{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}

	var node config.Node
	if nodePath == "" {
		node = resolver.Tree().Node(DefaultNodePath)
	} else {
		n, err := resolver.Resolve(nodePath)
		if err != nil {
			return nil, fmt.Errorf("resolve cache node: %w", err)
		}
		node = n
	}

	return registry.ResolveAs[*Typed[K, V]](ctx, reg, Key[K, V](name, nodePath), func(context.Context) (any, registry.Teardown, error) {
		cfg, err := ConfigurationFromNode(node, reflect.TypeFor[K](), reflect.TypeFor[V](), o.factories)
		if err != nil {
			return nil, nil, fmt.Errorf("cache %q: %w", name, err)
		}
		typed, err := NewTyped[K, V](name, cfg, o.logger)
		if err != nil {
			return nil, nil, err
		}

		var collector prometheus.Collector
		if o.registerer != nil && (cfg.StatisticsEnabled || cfg.ManagementEnabled) {
			collector = NewCollector(typed.Untyped())
			if err := o.registerer.Register(collector); err != nil {
				typed.Close()
				return nil, nil, fmt.Errorf("register cache %q metrics: %w", name, err)
			}
		}

		teardown := func(context.Context) error {
			if collector != nil {
				o.registerer.Unregister(collector)
			}
			return typed.Close()
		}
		return typed, teardown, nil
	})
}
