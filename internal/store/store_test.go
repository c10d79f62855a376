package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"modvault/internal/store"
	"modvault/internal/testsupport"
)

func TestPutGetDeleteArtifact(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	artifact := &store.Artifact{
		ID:        "266_266001",
		Name:      "Aatrox Justicar",
		Author:    "wildflover",
		Tags:      []string{"aatrox", "legacy"},
		SizeBytes: 4_200_000,
		LocalPath: "/mods/266_266001",
	}
	if err := st.PutArtifact(ctx, artifact); err != nil {
		t.Fatalf("PutArtifact: %v", err)
	}

	got, err := st.GetArtifact(ctx, artifact.ID)
	if err != nil {
		t.Fatalf("GetArtifact: %v", err)
	}
	if got.Name != artifact.Name || got.Author != artifact.Author {
		t.Fatalf("unexpected artifact: %+v", got)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "aatrox" {
		t.Fatalf("unexpected tags: %v", got.Tags)
	}
	if got.DownloadedAt.IsZero() {
		t.Fatal("expected downloaded_at assigned")
	}

	ok, err := st.HasArtifact(ctx, artifact.ID)
	if err != nil || !ok {
		t.Fatalf("HasArtifact = %v, %v", ok, err)
	}

	if err := st.DeleteArtifact(ctx, artifact.ID); err != nil {
		t.Fatalf("DeleteArtifact: %v", err)
	}
	if _, err := st.GetArtifact(ctx, artifact.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPutArtifactUpserts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := st.PutArtifact(ctx, &store.Artifact{ID: "a1", Name: "First"}); err != nil {
		t.Fatalf("PutArtifact: %v", err)
	}
	if err := st.PutArtifact(ctx, &store.Artifact{ID: "a1", Name: "Second"}); err != nil {
		t.Fatalf("PutArtifact replace: %v", err)
	}

	got, err := st.GetArtifact(ctx, "a1")
	if err != nil {
		t.Fatalf("GetArtifact: %v", err)
	}
	if got.Name != "Second" {
		t.Fatalf("expected replacement, got %q", got.Name)
	}

	artifacts, err := st.ListArtifacts(ctx)
	if err != nil {
		t.Fatalf("ListArtifacts: %v", err)
	}
	if len(artifacts) != 1 {
		t.Fatalf("expected 1 artifact, got %d", len(artifacts))
	}
}

func TestPreviewRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := st.Preview(ctx, "a1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := st.SavePreview(ctx, "a1", "data:image/jpeg;base64,abcd"); err != nil {
		t.Fatalf("SavePreview: %v", err)
	}
	dataURL, err := st.Preview(ctx, "a1")
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if dataURL != "data:image/jpeg;base64,abcd" {
		t.Fatalf("unexpected preview: %q", dataURL)
	}
}

func TestHistoryAppendAndList(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := &store.HistoryEntry{
		ArtifactID: "a1",
		Name:       "First Mod",
		Status:     store.HistoryCompleted,
		CreatedAt:  time.Now().Add(-time.Minute).UTC(),
	}
	if err := st.AppendHistory(ctx, first); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected generated history id")
	}

	second := &store.HistoryEntry{
		ArtifactID: "a2",
		Name:       "Second Mod",
		Status:     store.HistoryFailed,
		Error:      "server error",
	}
	if err := st.AppendHistory(ctx, second); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}

	entries, err := st.History(ctx, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ArtifactID != "a2" {
		t.Fatalf("expected newest first, got %+v", entries[0])
	}
	if entries[0].Status != store.HistoryFailed || entries[0].Error != "server error" {
		t.Fatalf("unexpected failed entry: %+v", entries[0])
	}

	limited, err := st.History(ctx, 1)
	if err != nil {
		t.Fatalf("History limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(limited))
	}
}

func TestSubscribeDeliversChangeEvents(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	var events []store.Event
	unsubscribe := st.Subscribe(func(e store.Event) {
		events = append(events, e)
	})

	if err := st.PutArtifact(ctx, &store.Artifact{ID: "a1", Name: "Mod"}); err != nil {
		t.Fatalf("PutArtifact: %v", err)
	}
	if err := st.DeleteArtifact(ctx, "a1"); err != nil {
		t.Fatalf("DeleteArtifact: %v", err)
	}
	// Deleting an absent artifact must not notify.
	if err := st.DeleteArtifact(ctx, "missing"); err != nil {
		t.Fatalf("DeleteArtifact absent: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %v", events)
	}
	if events[0].Op != store.OpPut || events[1].Op != store.OpDelete {
		t.Fatalf("unexpected event ops: %v", events)
	}

	unsubscribe()
	if err := st.PutArtifact(ctx, &store.Artifact{ID: "a2", Name: "Mod"}); err != nil {
		t.Fatalf("PutArtifact: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected no events after unsubscribe, got %v", events)
	}
}

func TestOpenRejectsSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	defer first.Close()

	if _, err := store.Open(cfg); err == nil {
		t.Fatal("expected second Open to fail while lock is held")
	}
}
