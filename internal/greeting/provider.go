package greeting

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/seantiz/graphkeep/internal/engine"
	"github.com/seantiz/graphkeep/internal/model"
	"github.com/seantiz/graphkeep/internal/store"
)

// Provider serves greeting messages kept in a *model.Greetings root.
type Provider struct {
	ec *engine.ExecutionContext
}

// NewProvider returns a provider over ec. Call InitGreetings before use.
func NewProvider(ec *engine.ExecutionContext) *Provider {
	return &Provider{ec: ec}
}

// InitGreetings seeds the graph with model.DefaultGreeting when it has no root.
func (p *Provider) InitGreetings(ctx context.Context) error {
	_, err := p.ec.Execute(func(st store.Store) error {
		if !st.Root().IsEmpty() {
			return nil
		}
		st.SetRoot(&model.Greetings{Messages: []string{model.DefaultGreeting}})
		if _, err := st.StoreRoot(ctx); err != nil {
			return fmt.Errorf("store greetings: %w", err)
		}
		return nil
	}).Await(ctx)
	return err
}

// AddGreeting appends a message and persists the list.
func (p *Provider) AddGreeting(ctx context.Context, message string) error {
	_, err := p.ec.Execute(func(st store.Store) error {
		g, err := loadGreetings(st)
		if err != nil {
			return err
		}
		g.Messages = append(g.Messages, message)
		if _, err := st.Store(ctx, g); err != nil {
			g.Messages = g.Messages[:len(g.Messages)-1]
			return fmt.Errorf("store greetings: %w", err)
		}
		return nil
	}).Await(ctx)
	return err
}

// Greeting returns a random stored message, or model.DefaultGreeting when the
// list is empty.
func (p *Provider) Greeting(ctx context.Context) (string, error) {
	return engine.Submit(p.ec, func(st store.Store) (string, error) {
		g, err := loadGreetings(st)
		if err != nil {
			return "", err
		}
		if len(g.Messages) == 0 {
			return model.DefaultGreeting, nil
		}
		return g.Messages[rand.IntN(len(g.Messages))], nil
	}).Await(ctx)
}

// Greetings returns a copy of the stored messages.
func (p *Provider) Greetings(ctx context.Context) ([]string, error) {
	return engine.Submit(p.ec, func(st store.Store) ([]string, error) {
		g, err := loadGreetings(st)
		if err != nil {
			return nil, err
		}
		return append([]string(nil), g.Messages...), nil
	}).Await(ctx)
}

func loadGreetings(st store.Store) (*model.Greetings, error) {
	g, ok, err := engine.LoadRoot[*model.Greetings](st)
	if err != nil {
		return nil, err
	}
	if !ok || g == nil {
		return nil, store.ErrEmptyRoot
	}
	return g, nil
}
