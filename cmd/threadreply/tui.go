package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/thread-reply/internal/app"
	"github.com/nhle/thread-reply/internal/store"
	appsync "github.com/nhle/thread-reply/internal/sync"
	"github.com/nhle/thread-reply/internal/thread"
)

func runTUI(ctx context.Context, e *env) error {
	if err := e.requireAccount(); err != nil {
		return err
	}

	engine, err := app.BuildEngine(ctx, e.cfg, e.log)
	if err != nil {
		return err
	}

	journal, err := store.NewSQLiteStore(e.cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer journal.Close()

	outbox, err := app.BuildOutbox(ctx, e.cfg, journal, nil, e.log)
	if err != nil {
		return err
	}

	coord := appsync.New(engine, thread.NewSelection(), appsync.Options{
		Timeout:       searchTimeout(e),
		SubjectMarker: e.cfg.Search.SubjectMarker,
		Logger:        e.log,
	})

	m := app.New(app.Options{
		Coordinator: coord,
		Outbox:      outbox,
		History:     journal,
		Account:     e.cfg.Account.Email,
		Marker:      e.cfg.Search.SubjectMarker,
		Logger:      e.log,
	})

	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("running ui: %w", err)
	}
	return nil
}
