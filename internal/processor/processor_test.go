package processor

import (
	"context"
	"testing"
	"time"

	"github.com/untoldecay/loom/internal/msgqueue"
	"github.com/untoldecay/loom/internal/project"
	"github.com/untoldecay/loom/internal/snapshot"
	"github.com/untoldecay/loom/internal/syncback"
	"github.com/untoldecay/loom/internal/tree"
	"github.com/untoldecay/loom/internal/variant"
	"github.com/untoldecay/loom/internal/vfs"
)

const manifestPath = "/proj/default.project.json5"

// startServed builds a project on the in-memory VFS and runs a processor
// over it. The returned cancel stops the loop.
func startServed(t *testing.T, files map[string]string) (*vfs.Vfs, *Processor, *msgqueue.Queue, context.CancelFunc) {
	t.Helper()
	v := vfs.NewMem()
	manifest := `{
        "name": "place",
        "tree": {"$className": "Folder", "$path": "src"}
    }`
	if err := v.Write(manifestPath, []byte(manifest)); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}
	for path, contents := range files {
		if err := v.Write(path, []byte(contents)); err != nil {
			t.Fatalf("writing %s: %v", path, err)
		}
	}

	proj, err := project.Load(v, manifestPath)
	if err != nil {
		t.Fatalf("loading project: %v", err)
	}
	rootSnap, err := snapshot.FromProject(v, proj)
	if err != nil {
		t.Fatalf("building snapshot: %v", err)
	}
	tr := tree.New(rootSnap)
	queue := msgqueue.New()
	proc := New(v, tr, queue, manifestPath)

	ctx, cancel := context.WithCancel(context.Background())
	go proc.Run(ctx)
	return v, proc, queue, cancel
}

func findChild(t *testing.T, proc *Processor, name string) tree.Referent {
	t.Helper()
	var id tree.Referent
	proc.WithReadLock(func(tr *tree.Tree) {
		for _, child := range tr.Get(tr.RootID()).Children {
			if tr.Get(child).Name == name {
				id = child
			}
		}
	})
	if id == tree.NilReferent {
		t.Fatalf("no child named %q", name)
	}
	return id
}

func waitForEntries(t *testing.T, queue *msgqueue.Queue, cursor uint32) uint32 {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, newCursor, err := queue.Subscribe(ctx, cursor)
	if err != nil {
		t.Fatalf("no queue entry arrived past cursor %d", cursor)
	}
	return newCursor
}

func TestForwardSyncFileEdit(t *testing.T) {
	v, proc, queue, cancel := startServed(t, map[string]string{
		"/proj/src/mod.luau": "return 1",
	})
	defer cancel()

	if err := v.Write("/proj/src/mod.luau", []byte("return 2")); err != nil {
		t.Fatalf("write: %v", err)
	}
	v.CommitEvent(vfs.Event{Kind: vfs.EventWrite, Path: "/proj/src/mod.luau"})

	waitForEntries(t, queue, 0)

	modID := findChild(t, proc, "mod")
	proc.WithReadLock(func(tr *tree.Tree) {
		if got := tr.Get(modID).Properties["Source"]; !variant.Eq(got, variant.String("return 2")) {
			t.Errorf("tree should pick up the disk edit, got %#v", got)
		}
	})
}

func TestForwardSyncNewFile(t *testing.T) {
	v, proc, queue, cancel := startServed(t, map[string]string{
		"/proj/src/mod.luau": "return 1",
	})
	defer cancel()

	if err := v.Write("/proj/src/fresh.luau", []byte("return 9")); err != nil {
		t.Fatalf("write: %v", err)
	}
	// The new path is unknown to the index; the event promotes to the
	// enclosing directory's instance.
	v.CommitEvent(vfs.Event{Kind: vfs.EventCreate, Path: "/proj/src/fresh.luau"})

	waitForEntries(t, queue, 0)

	freshID := findChild(t, proc, "fresh")
	proc.WithReadLock(func(tr *tree.Tree) {
		if tr.Get(freshID).ClassName != "ModuleScript" {
			t.Errorf("new file should appear as a ModuleScript")
		}
	})
}

func TestForwardSyncFileRemoval(t *testing.T) {
	v, proc, queue, cancel := startServed(t, map[string]string{
		"/proj/src/mod.luau":  "return 1",
		"/proj/src/keep.luau": "return 2",
	})
	defer cancel()

	if err := v.RemoveFile("/proj/src/mod.luau"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	v.CommitEvent(vfs.Event{Kind: vfs.EventRemove, Path: "/proj/src/mod.luau"})

	waitForEntries(t, queue, 0)

	proc.WithReadLock(func(tr *tree.Tree) {
		for _, child := range tr.Get(tr.RootID()).Children {
			if tr.Get(child).Name == "mod" {
				t.Errorf("removed file's instance should be gone")
			}
		}
	})
}

func TestReverseWriteAndEchoSuppression(t *testing.T) {
	// A reverse write producing N filesystem mutations yields exactly the
	// one synthesized applied patch; the watcher echo is swallowed.
	v, proc, queue, cancel := startServed(t, map[string]string{
		"/proj/src/existing.luau": "return 1",
	})
	defer cancel()

	id := findChild(t, proc, "existing")
	ctx, ctxCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer ctxCancel()

	result, err := proc.Write(ctx, &syncback.WriteRequest{
		Updated: []syncback.WriteUpdate{{
			ID:                id,
			ChangedProperties: map[string]variant.Value{"Source": variant.String("return 2")},
		}},
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if result.Applied.IsEmpty() {
		t.Fatalf("the write should synthesize one applied patch")
	}

	cursor := waitForEntries(t, queue, 0)

	// Simulate the watcher echo of the processor's own mutation.
	v.CommitEvent(vfs.Event{Kind: vfs.EventCreate, Path: "/proj/src/existing.luau"})
	time.Sleep(200 * time.Millisecond)

	if head := queue.Cursor(); head != cursor {
		t.Errorf("echo produced %d extra applied patches", head-cursor)
	}

	data, err := v.Read("/proj/src/existing.luau")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "return 2" {
		t.Errorf("disk content = %q", data)
	}
}

func TestExternalChangeAfterSuppressionDrains(t *testing.T) {
	// Once the echo is consumed, later external edits to the same path
	// propagate normally.
	v, proc, queue, cancel := startServed(t, map[string]string{
		"/proj/src/existing.luau": "return 1",
	})
	defer cancel()

	id := findChild(t, proc, "existing")
	ctx := context.Background()
	if _, err := proc.Write(ctx, &syncback.WriteRequest{
		Updated: []syncback.WriteUpdate{{
			ID:                id,
			ChangedProperties: map[string]variant.Value{"Source": variant.String("return 2")},
		}},
	}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	cursor := waitForEntries(t, queue, 0)

	v.CommitEvent(vfs.Event{Kind: vfs.EventCreate, Path: "/proj/src/existing.luau"})
	time.Sleep(150 * time.Millisecond)

	// External edit.
	if err := v.Write("/proj/src/existing.luau", []byte("return 3")); err != nil {
		t.Fatalf("write: %v", err)
	}
	v.CommitEvent(vfs.Event{Kind: vfs.EventWrite, Path: "/proj/src/existing.luau"})

	waitForEntries(t, queue, cursor)
	proc.WithReadLock(func(tr *tree.Tree) {
		if got := tr.Get(id).Properties["Source"]; !variant.Eq(got, variant.String("return 3")) {
			t.Errorf("external edit should propagate after suppression drains, got %#v", got)
		}
	})
}

func TestRescanRequiredRecovers(t *testing.T) {
	v, proc, queue, cancel := startServed(t, map[string]string{
		"/proj/src/mod.luau": "return 1",
	})
	defer cancel()

	// Mutate disk without a per-path event, then signal overflow.
	if err := v.Write("/proj/src/surprise.luau", []byte("return 7")); err != nil {
		t.Fatalf("write: %v", err)
	}
	v.CommitEvent(vfs.Event{Kind: vfs.EventRescan})

	waitForEntries(t, queue, 0)
	findChild(t, proc, "surprise")
}

func TestValidateTreeFreshness(t *testing.T) {
	v, proc, _, cancel := startServed(t, map[string]string{
		"/proj/src/mod.luau": "return 1",
	})
	defer cancel()

	added, removed, updated, err := proc.ValidateTree()
	if err != nil {
		t.Fatalf("ValidateTree failed: %v", err)
	}
	if added != 0 || removed != 0 || updated != 0 {
		t.Errorf("fresh tree should validate clean: %d/%d/%d", added, removed, updated)
	}

	// Drift the disk without telling the processor.
	if err := v.Write("/proj/src/extra.luau", []byte("return 2")); err != nil {
		t.Fatalf("write: %v", err)
	}
	added, _, _, err = proc.ValidateTree()
	if err != nil {
		t.Fatalf("ValidateTree failed: %v", err)
	}
	if added != 1 {
		t.Errorf("drifted tree should report one add, got %d", added)
	}
}
