package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/seantiz/graphkeep/internal/config"
	"github.com/seantiz/graphkeep/internal/registry"
	"github.com/seantiz/graphkeep/internal/store"
)

// ResourceName is the registry name under which storage contexts are shared.
const ResourceName = "storage"

// Key returns the registry key of the execution context for a storage node.
func Key(nodePath string) registry.Key {
	return registry.NewKey(registry.TypeOf[*ExecutionContext](), ResourceName, nodePath)
}

// Provide returns the shared execution context for the storage node at
// nodePath, building and starting it on first use. An empty nodePath selects
// the resolver's default node. Releasing the key shuts the context down.
func Provide(ctx context.Context, reg *registry.Registry, resolver *config.Resolver, nodePath string, logger *slog.Logger) (*ExecutionContext, error) {
	node, err := resolver.Resolve(nodePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage node: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return registry.ResolveAs[*ExecutionContext](ctx, reg, Key(node.Path()), func(ctx context.Context) (any, registry.Teardown, error) {
		cfg, err := store.ConfigFromNode(node)
		if err != nil {
			return nil, nil, err
		}
		s, err := store.NewSQLiteStore(cfg, logger.With("component", "store", "node", node.Path()))
		if err != nil {
			return nil, nil, err
		}

		c := NewExecutionContext(s, logger.With("component", "engine", "node", node.Path()))
		if _, err := c.Start(ctx).Await(ctx); err != nil {
			c.Shutdown(context.Background())
			return nil, nil, err
		}

		teardown := func(ctx context.Context) error {
			_, err := c.Shutdown(ctx).Await(ctx)
			return err
		}
		return c, teardown, nil
	})
}
