package downloads_test

import (
	"context"
	"testing"

	"depot/internal/downloads"
	"depot/internal/testsupport"
)

func openStore(t *testing.T) *downloads.Store {
	t.Helper()
	store, err := downloads.Open(testsupport.NewConfig(t))
	if err != nil {
		t.Fatalf("open downloads store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAddClaimAndComplete(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	first, err := store.Add(ctx, "https://mirror.example/games/first.nsp", "api")
	if err != nil {
		t.Fatalf("add first: %v", err)
	}
	second, err := store.Add(ctx, "https://mirror.example/games/second.nsp", "api")
	if err != nil {
		t.Fatalf("add second: %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("expected unique download IDs")
	}
	if first.Status != downloads.StatusQueued {
		t.Fatalf("expected queued status, got %s", first.Status)
	}

	items, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ID != second.ID {
		t.Fatalf("expected newest first in list, got %s", items[0].ID)
	}

	claimed, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID {
		t.Fatalf("expected oldest item %s claimed, got %+v", first.ID, claimed)
	}
	if claimed.Status != downloads.StatusDownloading {
		t.Fatalf("expected downloading status, got %s", claimed.Status)
	}
	if claimed.StartedAt == nil {
		t.Fatal("expected started_at to be set on claim")
	}

	if err := store.SetFilename(ctx, claimed.ID, "First Game [0100AAAA00000000][v0].nsp"); err != nil {
		t.Fatalf("set filename: %v", err)
	}
	if err := store.UpdateProgress(ctx, claimed.ID, 512, 2048); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	current, err := store.GetByID(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if current.Filename != "First Game [0100AAAA00000000][v0].nsp" {
		t.Fatalf("unexpected filename %q", current.Filename)
	}
	if current.BytesReceived != 512 || current.TotalBytes != 2048 {
		t.Fatalf("unexpected progress %d/%d", current.BytesReceived, current.TotalBytes)
	}

	ok, err := store.MarkCompleted(ctx, claimed.ID, "First Game [0100AAAA00000000][v0].nsp", "/library/First Game.nsp", 2048)
	if err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	if !ok {
		t.Fatal("expected completion transition to apply")
	}
	done, err := store.GetByID(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("get completed: %v", err)
	}
	if done.Status != downloads.StatusCompleted {
		t.Fatalf("expected completed, got %s", done.Status)
	}
	if done.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
	if done.BytesReceived != 2048 || done.TotalBytes != 2048 {
		t.Fatalf("unexpected final byte counts %d/%d", done.BytesReceived, done.TotalBytes)
	}

	// Terminal rows must not be mutated by stale worker writes.
	if ok, err := store.MarkFailed(ctx, claimed.ID, "late failure"); err != nil || ok {
		t.Fatalf("expected guarded failure transition to be a no-op, ok=%v err=%v", ok, err)
	}
	if err := store.UpdateProgress(ctx, claimed.ID, 1, 1); err != nil {
		t.Fatalf("late progress flush: %v", err)
	}
	unchanged, err := store.GetByID(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("get after late flush: %v", err)
	}
	if unchanged.BytesReceived != 2048 {
		t.Fatalf("late progress flush mutated terminal row: %d", unchanged.BytesReceived)
	}
}

func TestAddRejectsUnusableURLs(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for _, raw := range []string{"", "ftp://mirror.example/file.nsp", "not a url"} {
		if _, err := store.Add(ctx, raw, "api"); err == nil {
			t.Fatalf("expected error for url %q", raw)
		}
	}
}

func TestEnqueueSeedsDisplayHints(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	item, err := store.Enqueue(ctx, downloads.Request{
		URL:         "https://mirror.example/titles/0100ABCD01234000",
		DisplayName: "Example Quest [0100ABCD01234000][v0].nsp",
		Size:        4096,
	}, "import:shop")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	got, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Filename != "Example Quest [0100ABCD01234000][v0].nsp" {
		t.Fatalf("unexpected filename hint %q", got.Filename)
	}
	if got.TotalBytes != 4096 {
		t.Fatalf("unexpected size hint %d", got.TotalBytes)
	}
	if got.Source != "import:shop" {
		t.Fatalf("unexpected source %q", got.Source)
	}
}

func TestClaimPrefersResumeRequestedRows(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	first, err := store.Add(ctx, "https://mirror.example/a.nsp", "api")
	if err != nil {
		t.Fatalf("add a: %v", err)
	}
	second, err := store.Add(ctx, "https://mirror.example/b.nsp", "api")
	if err != nil {
		t.Fatalf("add b: %v", err)
	}

	claimed, err := store.ClaimNext(ctx)
	if err != nil || claimed == nil || claimed.ID != first.ID {
		t.Fatalf("expected to claim %s, got %+v err=%v", first.ID, claimed, err)
	}
	if ok, err := store.MarkPaused(ctx, first.ID, 100); err != nil || !ok {
		t.Fatalf("pause: ok=%v err=%v", ok, err)
	}

	// A paused row without a resume request is not runnable.
	claimed, err = store.ClaimNext(ctx)
	if err != nil || claimed == nil || claimed.ID != second.ID {
		t.Fatalf("expected to claim %s, got %+v err=%v", second.ID, claimed, err)
	}

	if ok, err := store.RequestResume(ctx, first.ID); err != nil || !ok {
		t.Fatalf("request resume: ok=%v err=%v", ok, err)
	}
	claimed, err = store.ClaimNext(ctx)
	if err != nil || claimed == nil || claimed.ID != first.ID {
		t.Fatalf("expected resumed row %s, got %+v err=%v", first.ID, claimed, err)
	}
	if claimed.ResumeRequested {
		t.Fatal("expected resume flag to clear on claim")
	}
	if claimed.ErrorMessage != "" {
		t.Fatalf("expected error message cleared on claim, got %q", claimed.ErrorMessage)
	}

	// Resume requests only apply to paused rows.
	if ok, err := store.RequestResume(ctx, second.ID); err != nil || ok {
		t.Fatalf("expected resume on downloading row to be a no-op, ok=%v err=%v", ok, err)
	}

	if claimed, err := store.ClaimNext(ctx); err != nil || claimed != nil {
		t.Fatalf("expected empty queue, got %+v err=%v", claimed, err)
	}
}

func TestRemoveOnlyDeletesTerminalRows(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	item, err := store.Add(ctx, "https://mirror.example/c.nsp", "api")
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if ok, err := store.Remove(ctx, item.ID); err != nil || ok {
		t.Fatalf("expected queued row to survive remove, ok=%v err=%v", ok, err)
	}
	if ok, err := store.MarkCancelled(ctx, item.ID); err != nil || !ok {
		t.Fatalf("cancel: ok=%v err=%v", ok, err)
	}
	if ok, err := store.Remove(ctx, item.ID); err != nil || !ok {
		t.Fatalf("expected cancelled row to be removable, ok=%v err=%v", ok, err)
	}
	if ok, err := store.Remove(ctx, "no-such-id"); err != nil || ok {
		t.Fatalf("expected remove of unknown id to be a no-op, ok=%v err=%v", ok, err)
	}
}

func TestCleanupKeepsPausedAndQueuedRows(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	urls := []string{
		"https://mirror.example/1.nsp",
		"https://mirror.example/2.nsp",
		"https://mirror.example/3.nsp",
		"https://mirror.example/4.nsp",
		"https://mirror.example/5.nsp",
	}
	for _, raw := range urls {
		if _, err := store.Add(ctx, raw, "api"); err != nil {
			t.Fatalf("add %s: %v", raw, err)
		}
	}

	// Drive rows into completed, failed, cancelled, and paused.
	for i := 0; i < 4; i++ {
		claimed, err := store.ClaimNext(ctx)
		if err != nil || claimed == nil {
			t.Fatalf("claim %d: %+v err=%v", i, claimed, err)
		}
		switch i {
		case 0:
			if _, err := store.MarkCompleted(ctx, claimed.ID, "f.nsp", "/library/f.nsp", 10); err != nil {
				t.Fatalf("complete: %v", err)
			}
		case 1:
			if _, err := store.MarkFailed(ctx, claimed.ID, "boom"); err != nil {
				t.Fatalf("fail: %v", err)
			}
		case 2:
			if _, err := store.MarkCancelled(ctx, claimed.ID); err != nil {
				t.Fatalf("cancel: %v", err)
			}
		case 3:
			if _, err := store.MarkPaused(ctx, claimed.ID, 5); err != nil {
				t.Fatalf("pause: %v", err)
			}
		}
	}

	removed, err := store.Cleanup(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 rows removed, got %d", removed)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 2 {
		t.Fatalf("expected 2 surviving rows, got %d", stats.Total)
	}
	if stats.ByStatus[downloads.StatusPaused] != 1 || stats.ByStatus[downloads.StatusQueued] != 1 {
		t.Fatalf("unexpected survivors: %+v", stats.ByStatus)
	}
}

func TestReconcileInterruptedFailsOrphanedRows(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	item, err := store.Add(ctx, "https://mirror.example/d.nsp", "api")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}

	recovered, err := store.ReconcileInterrupted(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if recovered != 1 {
		t.Fatalf("expected 1 reconciled row, got %d", recovered)
	}
	failed, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if failed.Status != downloads.StatusFailed {
		t.Fatalf("expected failed status, got %s", failed.Status)
	}
	if failed.ErrorMessage != downloads.InterruptedMessage {
		t.Fatalf("unexpected error message %q", failed.ErrorMessage)
	}

	// Second pass finds nothing left to repair.
	if recovered, err := store.ReconcileInterrupted(ctx); err != nil || recovered != 0 {
		t.Fatalf("expected idempotent reconcile, got %d err=%v", recovered, err)
	}
}

func TestStatsCountsCompletedBytes(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for i, raw := range []string{"https://mirror.example/x.nsp", "https://mirror.example/y.nsp"} {
		item, err := store.Add(ctx, raw, "api")
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		if _, err := store.ClaimNext(ctx); err != nil {
			t.Fatalf("claim: %v", err)
		}
		if _, err := store.MarkCompleted(ctx, item.ID, "f.nsp", "/library/f.nsp", int64(100*(i+1))); err != nil {
			t.Fatalf("complete: %v", err)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.ByStatus[downloads.StatusCompleted] != 2 {
		t.Fatalf("expected 2 completed, got %d", stats.ByStatus[downloads.StatusCompleted])
	}
	if stats.CompletedBytes != 300 {
		t.Fatalf("expected 300 completed bytes, got %d", stats.CompletedBytes)
	}
}

func TestParseStatus(t *testing.T) {
	if status, err := downloads.ParseStatus(" Paused "); err != nil || status != downloads.StatusPaused {
		t.Fatalf("expected paused, got %q err=%v", status, err)
	}
	if _, err := downloads.ParseStatus("stalled"); err == nil {
		t.Fatal("expected error for unknown status")
	}
	if !downloads.StatusCompleted.IsTerminal() || downloads.StatusPaused.IsTerminal() {
		t.Fatal("terminal classification is wrong")
	}
}
