package provider

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/sungwon/email-queue/internal/msgstore"
)

// Registry holds named providers for health checking.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.GetName()] = p
}

func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", name)
	}
	return p, nil
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) All() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	return out
}

// Deps are collaborators some providers need. Zero values get defaults.
type Deps struct {
	// HTTP is used by sendgrid and mailgun.
	HTTP HTTPClient
	// Store is required by the file provider.
	Store msgstore.Store
	// Stdout is where the stdout provider writes.
	Stdout io.Writer
}

// NewProvider validates cfg and builds the provider it names.
func NewProvider(ctx context.Context, cfg ProviderConfig, deps Deps) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid provider config: %w", err)
	}
	if deps.HTTP == nil {
		deps.HTTP = NewHTTPClient(cfg.Timeout)
	}

	switch cfg.Type {
	case TypeSendGrid:
		return NewSendGrid(cfg, deps.HTTP), nil
	case TypeMailgun:
		return NewMailgun(cfg, deps.HTTP), nil
	case TypeSES:
		p, err := NewSES(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	case TypeResend:
		return NewResend(cfg), nil
	case TypePostmark:
		return NewPostmark(cfg), nil
	case TypeSMTP:
		return NewSMTP(cfg), nil
	case TypeStdout:
		return NewStdout(deps.Stdout), nil
	case TypeFile:
		if deps.Store == nil {
			return nil, fmt.Errorf("file provider requires a message store")
		}
		return NewFile(deps.Store), nil
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Type)
	}
}
