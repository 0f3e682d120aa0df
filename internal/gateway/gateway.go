// Package gateway composes the store, the chat lock registry, and the
// provider registry into whole conversation turns.
package gateway

import (
	"context"
	"log/slog"
	"time"

	"ChatGate/internal/chatlock"
	"ChatGate/internal/conversation"
	"ChatGate/internal/provider"
	"ChatGate/internal/store"

	"go.opentelemetry.io/otel/trace"
)

// Gateway implements one turn as a single logical unit: append the user
// message, call the provider with the full history, append the reply,
// persist.
type Gateway struct {
	store     *store.Store
	locks     *chatlock.Registry
	providers *provider.Registry
	logger    *slog.Logger
	tracer    trace.Tracer
}

func New(st *store.Store, providers *provider.Registry, logger *slog.Logger, tracer trace.Tracer) *Gateway {
	return &Gateway{
		store:     st,
		locks:     chatlock.NewRegistry(),
		providers: providers,
		logger:    logger,
		tracer:    tracer,
	}
}

// PostMessage runs one persisted turn against the chat and returns the
// assistant's reply. The provider name is resolved before anything is
// loaded or written, so an unknown provider persists nothing. When the
// provider call fails the user's message is still saved before the error
// surfaces: a failed upstream never loses the caller's turn.
func (g *Gateway) PostMessage(ctx context.Context, chatID, role, content, providerName string) (conversation.Message, error) {
	ctx, span := g.tracer.Start(ctx, "post_message")
	defer span.End()

	adapter, err := g.providers.Lookup(providerName)
	if err != nil {
		return conversation.Message{}, err
	}

	if role == "" {
		role = conversation.RoleUser
	}

	var reply conversation.Message
	err = g.locks.With(ctx, chatID, func() error {
		chat, err := g.store.LoadChat(ctx, chatID)
		if err != nil {
			return err
		}

		chat.Messages = append(chat.Messages, conversation.Message{
			Role:      role,
			Content:   content,
			Timestamp: time.Now().UTC(),
		})

		msg, genErr := g.providers.Generate(ctx, adapter, chat.Messages)
		if genErr != nil {
			// Keep the user's turn even though the provider failed.
			if saveErr := g.store.SaveChat(ctx, chat); saveErr != nil {
				g.logger.Error("failed to save chat after provider failure",
					"chat_id", chatID, "provider", adapter.Name(), "error", saveErr)
			}
			return genErr
		}

		chat.Messages = append(chat.Messages, msg)
		if err := g.store.SaveChat(ctx, chat); err != nil {
			return err
		}

		reply = msg
		return nil
	})

	if err != nil {
		g.logger.Error("turn failed", "chat_id", chatID, "provider", adapter.Name(), "error", err)
		return conversation.Message{}, err
	}

	g.logger.Info("turn completed", "chat_id", chatID, "provider", adapter.Name())
	return reply, nil
}

// Ephemeral runs one non-persisted exchange over a caller-supplied
// history. No store or lock is touched.
func (g *Gateway) Ephemeral(ctx context.Context, history []conversation.Message, providerName string) (conversation.Message, error) {
	ctx, span := g.tracer.Start(ctx, "ephemeral_message")
	defer span.End()

	adapter, err := g.providers.Lookup(providerName)
	if err != nil {
		return conversation.Message{}, err
	}

	reply, err := g.providers.Generate(ctx, adapter, history)
	if err != nil {
		g.logger.Error("ephemeral exchange failed", "provider", adapter.Name(), "error", err)
		return conversation.Message{}, err
	}
	return reply, nil
}
