package cache

import (
	"context"
	"reflect"

	"github.com/seantiz/graphkeep/internal/config"
)

// Cache node option names.
const (
	OptionKeyType                = "key-type"
	OptionValueType              = "value-type"
	OptionManagementEnabled      = "management-enabled"
	OptionStatisticsEnabled      = "statistics-enabled"
	OptionReadThrough            = "read-through"
	OptionWriteThrough           = "write-through"
	OptionStoreByValue           = "store-by-value"
	OptionExpiryPolicyFactory    = "expiry-policy-factory"
	OptionEvictionManagerFactory = "eviction-manager-factory"
	OptionCacheLoaderFactory     = "cache-loader-factory"
	OptionCacheWriterFactory     = "cache-writer-factory"
	OptionListenerConfigurations = "listener-configurations"
)

// DefaultNodePath is the config node used by caches that declare no node.
const DefaultNodePath = "cache.default"

// Loader supplies values for keys missing from a read-through cache.
type Loader interface {
	Load(ctx context.Context, key any) (value any, found bool, err error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, key any) (any, bool, error)

func (f LoaderFunc) Load(ctx context.Context, key any) (any, bool, error) {
	return f(ctx, key)
}

// Writer receives the puts and removals of a write-through cache. A failed
// write rejects the cache operation.
type Writer interface {
	Write(ctx context.Context, key, value any) error
	Delete(ctx context.Context, key any) error
}

// EvictionManager picks entries to drop after a put. keys lists the live keys
// oldest first.
type EvictionManager interface {
	Evict(keys []any) []any
}

type noEviction struct{}

func (noEviction) Evict([]any) []any { return nil }

// ListenerConfiguration registers a listener under a name.
type ListenerConfiguration struct {
	Name string
	New  func() Listener
}

// Factories holds the named factories a config node may refer to.
type Factories struct {
	Loaders          map[string]func() Loader
	Writers          map[string]func() Writer
	EvictionManagers map[string]func() EvictionManager
	Listeners        map[string]func() Listener
}

// Configuration describes one cache. Use NewConfiguration for defaults.
type Configuration struct {
	KeyType   reflect.Type
	ValueType reflect.Type

	ManagementEnabled bool
	StatisticsEnabled bool
	ReadThrough       bool
	WriteThrough      bool
	StoreByValue      bool

	ExpiryPolicy           ExpiryPolicy
	EvictionManagerFactory func() EvictionManager

	// Nil when unset.
	CacheLoaderFactory func() Loader
	CacheWriterFactory func() Writer

	ListenerConfigurations []ListenerConfiguration
}

// NewConfiguration returns the default configuration for the given types.
// A nil type accepts values of any type.
func NewConfiguration(keyType, valueType reflect.Type) Configuration {
	return Configuration{
		KeyType:                keyType,
		ValueType:              valueType,
		ExpiryPolicy:           Eternal,
		EvictionManagerFactory: func() EvictionManager { return noEviction{} },
	}
}

// ConfigurationFromNode reads a cache node over the defaults. Types declared
// by the node must match keyType and valueType. A missing node yields the
// defaults.
func ConfigurationFromNode(node config.Node, keyType, valueType reflect.Type, f Factories) (Configuration, error) {
	cfg := NewConfiguration(keyType, valueType)
	if !node.Exists() {
		return cfg, nil
	}

	if name, ok := node.String(OptionKeyType); ok {
		if err := verifyType(OptionKeyType, name, keyType); err != nil {
			return Configuration{}, err
		}
	}
	if name, ok := node.String(OptionValueType); ok {
		if err := verifyType(OptionValueType, name, valueType); err != nil {
			return Configuration{}, err
		}
	}

	cfg.ManagementEnabled = node.Bool(OptionManagementEnabled, false)
	cfg.StatisticsEnabled = node.Bool(OptionStatisticsEnabled, false)
	cfg.ReadThrough = node.Bool(OptionReadThrough, false)
	cfg.WriteThrough = node.Bool(OptionWriteThrough, false)
	cfg.StoreByValue = node.Bool(OptionStoreByValue, false)

	if s, ok := node.String(OptionExpiryPolicyFactory); ok {
		p, err := ParseExpiryPolicy(s)
		if err != nil {
			return Configuration{}, err
		}
		cfg.ExpiryPolicy = p
	}

	if name, ok := node.String(OptionEvictionManagerFactory); ok && name != "default" {
		fn, ok := f.EvictionManagers[name]
		if !ok {
			return Configuration{}, UnknownFactoryError{Option: OptionEvictionManagerFactory, Name: name}
		}
		cfg.EvictionManagerFactory = fn
	}
	if name, ok := node.String(OptionCacheLoaderFactory); ok {
		fn, ok := f.Loaders[name]
		if !ok {
			return Configuration{}, UnknownFactoryError{Option: OptionCacheLoaderFactory, Name: name}
		}
		cfg.CacheLoaderFactory = fn
	}
	if name, ok := node.String(OptionCacheWriterFactory); ok {
		fn, ok := f.Writers[name]
		if !ok {
			return Configuration{}, UnknownFactoryError{Option: OptionCacheWriterFactory, Name: name}
		}
		cfg.CacheWriterFactory = fn
	}
	for _, name := range node.Strings(OptionListenerConfigurations) {
		fn, ok := f.Listeners[name]
		if !ok {
			return Configuration{}, UnknownFactoryError{Option: OptionListenerConfigurations, Name: name}
		}
		cfg.ListenerConfigurations = append(cfg.ListenerConfigurations, ListenerConfiguration{Name: name, New: fn})
	}

	return cfg, nil
}

func verifyType(option, declared string, actual reflect.Type) error {
	if actual == nil {
		return nil
	}
	if declared == actual.String() || declared == qualifiedTypeName(actual) {
		return nil
	}
	return ConfigMismatchError{
		Field:    option,
		Expected: declared,
		Actual:   actual.String(),
	}
}

func qualifiedTypeName(t reflect.Type) string {
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	if t.Kind() == reflect.Pointer {
		return "*" + qualifiedTypeName(t.Elem())
	}
	return t.String()
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "any"
	}
	return t.String()
}
