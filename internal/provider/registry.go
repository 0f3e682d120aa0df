package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ChatGate/internal/config"
	"ChatGate/internal/conversation"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Registry maps provider names to adapters and owns the generation
// wrapper shared by all of them. Adding a provider means registering one
// more adapter; nothing at the call sites changes.
type Registry struct {
	adapters    map[string]Adapter
	defaultName string
	tracer      trace.Tracer
	meter       metric.Meter
}

func NewRegistry(defaultName string, tracer trace.Tracer, meter metric.Meter) *Registry {
	return &Registry{
		adapters:    make(map[string]Adapter),
		defaultName: defaultName,
		tracer:      tracer,
		meter:       meter,
	}
}

// Register adds an adapter under its own name, replacing any previous
// adapter with that name.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Name()] = a
}

// FromConfig builds a registry with an adapter for every configured
// provider. Unknown provider names in the config are rejected so a typo
// fails at startup rather than on the first turn.
func FromConfig(cfg *config.Config, client *http.Client, tracer trace.Tracer, meter metric.Meter) (*Registry, error) {
	r := NewRegistry(cfg.DefaultProvider, tracer, meter)

	for name, pc := range cfg.Providers {
		switch name {
		case config.ProviderOpenAI:
			r.Register(NewOpenAI(pc, client, meter))
		case config.ProviderGemini:
			r.Register(NewGemini(pc, client))
		case config.ProviderAnthropic:
			r.Register(NewAnthropic(pc, client))
		default:
			return nil, fmt.Errorf("unknown provider in config: %s", name)
		}
	}

	return r, nil
}

// Lookup resolves a provider name to its adapter. An empty name selects
// the configured default.
func (r *Registry) Lookup(name string) (Adapter, error) {
	if name == "" {
		name = r.defaultName
	}
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, name)
	}
	return a, nil
}

// Generate runs one upstream call against the adapter and normalizes the
// reply. History is only read, never modified; the returned message is
// tagged assistant regardless of what the wire format reports.
func (r *Registry) Generate(ctx context.Context, a Adapter, history []conversation.Message) (conversation.Message, error) {
	if !hasUserMessage(history) {
		return conversation.Message{}, ErrEmptyHistory
	}

	ctx, span := r.tracer.Start(ctx, a.Name()+"_api_call")
	defer span.End()

	start := time.Now()
	text, err := a.Complete(ctx, history)
	duration := time.Since(start)

	histogram, herr := r.meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if herr == nil {
		histogram.Record(ctx, float64(duration.Milliseconds()))
	}

	if err != nil {
		return conversation.Message{}, &CallError{Provider: a.Name(), Err: err}
	}

	return conversation.Message{
		Role:      conversation.RoleAssistant,
		Content:   strings.TrimSpace(text),
		Timestamp: time.Now().UTC(),
	}, nil
}

func hasUserMessage(history []conversation.Message) bool {
	for _, msg := range history {
		if msg.Role == conversation.RoleUser {
			return true
		}
	}
	return false
}
