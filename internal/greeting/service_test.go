package greeting_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/seantiz/graphkeep/internal/engine"
	"github.com/seantiz/graphkeep/internal/greeting"
	"github.com/seantiz/graphkeep/internal/store"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// openContext starts an execution context over a SQLite store in dir. The
// context is shut down when the test ends unless the caller does it first.
func openContext(t *testing.T, dir string) *engine.ExecutionContext {
	t.Helper()
	cfg := store.DefaultConfig(dir)
	cfg.HousekeepingInterval = 0
	s, err := store.NewSQLiteStore(cfg, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	c := engine.NewExecutionContext(s, nil)
	if _, err := c.Start(context.Background()).Await(testCtx(t)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		c.Shutdown(context.Background()).Await(context.Background())
	})
	return c
}

func TestLogServiceAddEntry(t *testing.T) {
	ctx := testCtx(t)
	svc := greeting.NewLogService(openContext(t, t.TempDir()), nil, nil)

	if err := svc.InitRoot(ctx); err != nil {
		t.Fatalf("InitRoot: %v", err)
	}
	entries, err := svc.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("new log has %d entries, want 0", len(entries))
	}

	e, err := svc.AddEntry(ctx, "Hello")
	if err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if e.ID == "" {
		t.Error("entry should get an id")
	}

	entries, err = svc.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "Hello" {
		t.Errorf("entries = %+v, want one entry named Hello", entries)
	}
}

func TestLogServiceConcurrentEntries(t *testing.T) {
	ctx := testCtx(t)
	svc := greeting.NewLogService(openContext(t, t.TempDir()), nil, nil)
	if err := svc.InitRoot(ctx); err != nil {
		t.Fatalf("InitRoot: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, name := range []string{"A", "B"} {
		wg.Go(func() {
			if _, err := svc.AddEntry(ctx, name); err != nil {
				errs <- err
			}
		})
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("AddEntry: %v", err)
	}

	entries, err := svc.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	counts := make(map[string]int)
	for _, e := range entries {
		counts[e.Name]++
	}
	if len(entries) != 2 || counts["A"] != 1 || counts["B"] != 1 {
		t.Errorf("entries = %+v, want A and B exactly once", entries)
	}
}

func TestLogServiceSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := testCtx(t)

	c := openContext(t, dir)
	svc := greeting.NewLogService(c, nil, nil)
	if err := svc.InitRoot(ctx); err != nil {
		t.Fatalf("InitRoot: %v", err)
	}
	for _, name := range []string{"Ada", "Grace"} {
		if _, err := svc.AddEntry(ctx, name); err != nil {
			t.Fatalf("AddEntry(%s): %v", name, err)
		}
	}
	if _, err := c.Shutdown(ctx).Await(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	svc = greeting.NewLogService(openContext(t, dir), nil, nil)
	// InitRoot must not replace the persisted log.
	if err := svc.InitRoot(ctx); err != nil {
		t.Fatalf("InitRoot: %v", err)
	}
	if _, err := svc.AddEntry(ctx, "Linus"); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}

	entries, err := svc.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	if want := []string{"Ada", "Grace", "Linus"}; !slices.Equal(names, want) {
		t.Errorf("names = %v, want %v", names, want)
	}

	ada, err := svc.EntriesFor(ctx, "Ada")
	if err != nil {
		t.Fatalf("EntriesFor: %v", err)
	}
	if len(ada) != 1 {
		t.Errorf("EntriesFor(Ada) = %+v, want one entry", ada)
	}
}

func TestLogServiceWithoutRoot(t *testing.T) {
	ctx := testCtx(t)
	svc := greeting.NewLogService(openContext(t, t.TempDir()), nil, nil)

	_, err := svc.AddEntry(ctx, "nobody")
	if !errors.Is(err, store.ErrEmptyRoot) {
		t.Errorf("AddEntry without root error = %v, want ErrEmptyRoot", err)
	}
	var te *engine.TaskError
	if !errors.As(err, &te) {
		t.Errorf("error = %T, want *engine.TaskError", err)
	}
}

func TestLogServicePublishesEntries(t *testing.T) {
	ctx := testCtx(t)
	broker := greeting.NewEntryBroker()
	svc := greeting.NewLogService(openContext(t, t.TempDir()), broker, nil)
	if err := svc.InitRoot(ctx); err != nil {
		t.Fatalf("InitRoot: %v", err)
	}

	all, unsubAll := broker.Subscribe(greeting.AllEntries)
	defer unsubAll()
	named, unsubNamed := broker.Subscribe(greeting.NameTopic("Ada"))
	defer unsubNamed()

	for _, name := range []string{"Ada", "Grace"} {
		if _, err := svc.AddEntry(ctx, name); err != nil {
			t.Fatalf("AddEntry: %v", err)
		}
	}
	broker.Close()

	var gotAll, gotNamed []string
	for e := range all {
		gotAll = append(gotAll, e.Name)
	}
	for e := range named {
		gotNamed = append(gotNamed, e.Name)
	}
	if !slices.Equal(gotAll, []string{"Ada", "Grace"}) {
		t.Errorf("all-entries subscriber got %v", gotAll)
	}
	if !slices.Equal(gotNamed, []string{"Ada"}) {
		t.Errorf("Ada subscriber got %v", gotNamed)
	}
}

func TestProviderGreetings(t *testing.T) {
	dir := t.TempDir()
	ctx := testCtx(t)

	c := openContext(t, dir)
	p := greeting.NewProvider(c)
	if err := p.InitGreetings(ctx); err != nil {
		t.Fatalf("InitGreetings: %v", err)
	}
	g, err := p.Greeting(ctx)
	if err != nil {
		t.Fatalf("Greeting: %v", err)
	}
	if g != "Hello" {
		t.Errorf("seeded greeting = %q, want Hello", g)
	}

	if err := p.AddGreeting(ctx, "Hola"); err != nil {
		t.Fatalf("AddGreeting: %v", err)
	}
	if _, err := c.Shutdown(ctx).Await(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	p = greeting.NewProvider(openContext(t, dir))
	if err := p.InitGreetings(ctx); err != nil {
		t.Fatalf("InitGreetings: %v", err)
	}
	all, err := p.Greetings(ctx)
	if err != nil {
		t.Fatalf("Greetings: %v", err)
	}
	if want := []string{"Hello", "Hola"}; !slices.Equal(all, want) {
		t.Fatalf("greetings = %v, want %v", all, want)
	}

	for range 20 {
		g, err := p.Greeting(ctx)
		if err != nil {
			t.Fatalf("Greeting: %v", err)
		}
		if !slices.Contains(all, g) {
			t.Errorf("Greeting() = %q, not a stored greeting", g)
		}
	}
}

func TestLogServiceNameCannotShadowAllEntries(t *testing.T) {
	ctx := testCtx(t)
	broker := greeting.NewEntryBroker()
	svc := greeting.NewLogService(openContext(t, t.TempDir()), broker, nil)
	if err := svc.InitRoot(ctx); err != nil {
		t.Fatalf("InitRoot: %v", err)
	}

	all, unsubAll := broker.Subscribe(greeting.AllEntries)
	defer unsubAll()
	star, unsubStar := broker.Subscribe(greeting.NameTopic("*"))
	defer unsubStar()
	other, unsubOther := broker.Subscribe(greeting.NameTopic("Ada"))
	defer unsubOther()

	if _, err := svc.AddEntry(ctx, "*"); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	broker.Close()

	if got := len(drain(all)); got != 1 {
		t.Errorf("all-entries subscriber got %d copies, want 1", got)
	}
	if got := drain(star); len(got) != 1 || got[0] != "*" {
		t.Errorf("subscriber of name * got %v, want [*]", got)
	}
	if got := drain(other); len(got) != 0 {
		t.Errorf("subscriber of Ada got %v, want nothing", got)
	}
}
