// Package greeting holds the greeting log and greeting message services. Both
// keep their state in a persisted graph and touch it only from tasks running
// on an execution context.
package greeting

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/seantiz/graphkeep/internal/engine"
	"github.com/seantiz/graphkeep/internal/model"
	"github.com/seantiz/graphkeep/internal/store"
)

// LogService records greeted names in a *model.GreetingLog root.
type LogService struct {
	ec     *engine.ExecutionContext
	broker *EntryBroker
	logger *slog.Logger
}

// NewLogService returns a service over ec. broker may be nil.
func NewLogService(ec *engine.ExecutionContext, broker *EntryBroker, logger *slog.Logger) *LogService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LogService{ec: ec, broker: broker, logger: logger}
}

// InitRoot installs and stores an empty log when the graph has no root.
func (s *LogService) InitRoot(ctx context.Context) error {
	_, err := s.ec.Execute(func(st store.Store) error {
		if !st.Root().IsEmpty() {
			return nil
		}
		st.SetRoot(&model.GreetingLog{})
		if _, err := st.StoreRoot(ctx); err != nil {
			return fmt.Errorf("store empty log: %w", err)
		}
		s.logger.Info("greeting log initialized")
		return nil
	}).Await(ctx)
	return err
}

// AddEntry appends an entry for name and persists the log.
func (s *LogService) AddEntry(ctx context.Context, name string) (model.LogEntry, error) {
	e := model.NewLogEntry(name)
	_, err := s.ec.Execute(func(st store.Store) error {
		log, err := loadLog(st)
		if err != nil {
			return err
		}
		log.Entries = append(log.Entries, e)
		if _, err := st.Store(ctx, log); err != nil {
			log.Entries = log.Entries[:len(log.Entries)-1]
			return fmt.Errorf("store log: %w", err)
		}
		return nil
	}).Await(ctx)
	if err != nil {
		return model.LogEntry{}, err
	}

	if s.broker != nil {
		s.broker.Publish(AllEntries, e)
		s.broker.Publish(NameTopic(e.Name), e)
	}
	return e, nil
}

// Entries returns a copy of the log in insertion order.
func (s *LogService) Entries(ctx context.Context) ([]model.LogEntry, error) {
	return engine.Submit(s.ec, func(st store.Store) ([]model.LogEntry, error) {
		log, err := loadLog(st)
		if err != nil {
			return nil, err
		}
		return slices.Clone(log.Entries), nil
	}).Await(ctx)
}

// EntriesFor returns the entries recorded for name.
func (s *LogService) EntriesFor(ctx context.Context, name string) ([]model.LogEntry, error) {
	return engine.Submit(s.ec, func(st store.Store) ([]model.LogEntry, error) {
		log, err := loadLog(st)
		if err != nil {
			return nil, err
		}
		var out []model.LogEntry
		for _, e := range log.Entries {
			if e.Name == name {
				out = append(out, e)
			}
		}
		return out, nil
	}).Await(ctx)
}

// Broker returns the broker entries are published to, or nil.
func (s *LogService) Broker() *EntryBroker {
	return s.broker
}

func loadLog(st store.Store) (*model.GreetingLog, error) {
	log, ok, err := engine.LoadRoot[*model.GreetingLog](st)
	if err != nil {
		return nil, err
	}
	if !ok || log == nil {
		return nil, store.ErrEmptyRoot
	}
	return log, nil
}
