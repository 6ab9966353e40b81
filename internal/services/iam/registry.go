package iam

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/terraconstructs/gridauth/internal/auth"
	"github.com/terraconstructs/gridauth/internal/provider"
	"github.com/terraconstructs/gridauth/internal/repository"
	"github.com/terraconstructs/gridauth/internal/telemetry"
)

// Kind separates the registry namespaces.
type Kind string

const (
	KindProvider Kind = "provider"
	KindGuard    Kind = "guard"
)

// Built-in registrations.
const (
	ProviderDatabase = "database"
	GuardAPI         = "api"
	GuardWeb         = "web"
)

// Dependencies are the collaborators factories draw from. Guards resolved after a
// provider receive it in Provider.
type Dependencies struct {
	Users    repository.UserRepository
	Tokens   repository.TokenStore
	Codec    *auth.Codec
	Provider provider.Provider

	APIToken APITokenConfig
	Session  SessionConfig

	Logger  hclog.Logger
	Metrics *telemetry.AuthMetrics
}

// Component is a resolved registry entry. Exactly one of the concrete variants below.
type Component interface {
	Kind() Kind
	Name() string
}

// ProviderComponent wraps a resolved user provider.
type ProviderComponent struct {
	name     string
	Provider provider.Provider
}

func (c ProviderComponent) Kind() Kind   { return KindProvider }
func (c ProviderComponent) Name() string { return c.name }

// APITokenComponent wraps a resolved API token guard.
type APITokenComponent struct {
	name          string
	Authenticator *APITokenAuthenticator
}

func (c APITokenComponent) Kind() Kind   { return KindGuard }
func (c APITokenComponent) Name() string { return c.name }

// SessionComponent wraps a resolved session guard factory.
type SessionComponent struct {
	name    string
	Factory *SessionAuthenticatorFactory
}

func (c SessionComponent) Kind() Kind   { return KindGuard }
func (c SessionComponent) Name() string { return c.name }

// Factory builds a component from dependencies. The name passed is the registered name.
type Factory func(ctx context.Context, name string, deps Dependencies) (Component, error)

// Registry maps (kind, name) to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[Kind]map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[Kind]map[string]Factory{}}
}

// DefaultRegistry returns a registry with the built-in provider and guards.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.mustExtend(KindProvider, ProviderDatabase, databaseProviderFactory)
	r.mustExtend(KindGuard, GuardAPI, apiTokenGuardFactory)
	r.mustExtend(KindGuard, GuardWeb, sessionGuardFactory)
	return r
}

// Extend registers a factory. Registering a name twice within a kind is an error.
func (r *Registry) Extend(kind Kind, name string, factory Factory) error {
	if kind != KindProvider && kind != KindGuard {
		return fmt.Errorf("%w: unknown registry kind %q", auth.ErrConfiguration, kind)
	}
	if name == "" || factory == nil {
		return fmt.Errorf("%w: registry entries need a name and factory", auth.ErrConfiguration)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	byName, ok := r.factories[kind]
	if !ok {
		byName = map[string]Factory{}
		r.factories[kind] = byName
	}
	if _, exists := byName[name]; exists {
		return fmt.Errorf("%w: %s %q already registered", auth.ErrConfiguration, kind, name)
	}
	byName[name] = factory
	return nil
}

func (r *Registry) mustExtend(kind Kind, name string, factory Factory) {
	if err := r.Extend(kind, name, factory); err != nil {
		panic(err)
	}
}

// Names lists registered names of a kind, sorted.
func (r *Registry) Names(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories[kind]))
	for name := range r.factories[kind] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve builds the named component and verifies its kind.
func (r *Registry) Resolve(ctx context.Context, kind Kind, name string, deps Dependencies) (Component, error) {
	r.mu.RLock()
	factory, ok := r.factories[kind][name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no %s registered as %q", auth.ErrConfiguration, kind, name)
	}

	c, err := factory(ctx, name, deps)
	if err != nil {
		return nil, fmt.Errorf("resolve %s %q: %w", kind, name, err)
	}
	if c == nil || c.Kind() != kind {
		return nil, fmt.Errorf("%w: factory for %s %q returned %T", auth.ErrConfiguration, kind, name, c)
	}
	return c, nil
}

// ResolveProvider resolves a provider by name.
func (r *Registry) ResolveProvider(ctx context.Context, name string, deps Dependencies) (provider.Provider, error) {
	c, err := r.Resolve(ctx, KindProvider, name, deps)
	if err != nil {
		return nil, err
	}
	pc, ok := c.(ProviderComponent)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a provider", auth.ErrConfiguration, name)
	}
	return pc.Provider, nil
}

// ResolveAPIToken resolves an API token guard by name.
func (r *Registry) ResolveAPIToken(ctx context.Context, name string, deps Dependencies) (*APITokenAuthenticator, error) {
	c, err := r.Resolve(ctx, KindGuard, name, deps)
	if err != nil {
		return nil, err
	}
	ac, ok := c.(APITokenComponent)
	if !ok {
		return nil, fmt.Errorf("%w: guard %q is not an api token guard", auth.ErrConfiguration, name)
	}
	return ac.Authenticator, nil
}

// ResolveSession resolves a session guard factory by name.
func (r *Registry) ResolveSession(ctx context.Context, name string, deps Dependencies) (*SessionAuthenticatorFactory, error) {
	c, err := r.Resolve(ctx, KindGuard, name, deps)
	if err != nil {
		return nil, err
	}
	sc, ok := c.(SessionComponent)
	if !ok {
		return nil, fmt.Errorf("%w: guard %q is not a session guard", auth.ErrConfiguration, name)
	}
	return sc.Factory, nil
}

func databaseProviderFactory(_ context.Context, name string, deps Dependencies) (Component, error) {
	if deps.Users == nil {
		return nil, fmt.Errorf("%w: database provider requires a user repository", auth.ErrConfiguration)
	}
	return ProviderComponent{name: name, Provider: provider.NewDatabaseProvider(deps.Users, deps.Logger)}, nil
}

func apiTokenGuardFactory(_ context.Context, name string, deps Dependencies) (Component, error) {
	a, err := NewAPITokenAuthenticator(deps.Provider, deps.Tokens, deps.Codec, deps.APIToken, deps.Logger, deps.Metrics)
	if err != nil {
		return nil, err
	}
	return APITokenComponent{name: name, Authenticator: a}, nil
}

func sessionGuardFactory(_ context.Context, name string, deps Dependencies) (Component, error) {
	f, err := NewSessionAuthenticatorFactory(deps.Provider, deps.Session, deps.Logger, deps.Metrics)
	if err != nil {
		return nil, err
	}
	return SessionComponent{name: name, Factory: f}, nil
}
