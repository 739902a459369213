package repotrack

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"voxup/runner"
)

// initCheckout creates a repository with a single commit and returns its
// path together with the commit hash.
func initCheckout(t *testing.T) (string, plumbing.Hash) {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "webui.py"), []byte("# webui"), 0o644); err != nil {
		t.Fatal(err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	if _, err := wt.Add("webui.py"); err != nil {
		t.Fatalf("add: %v", err)
	}
	hash, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return dir, hash
}

func cannedRefs(refs ...*plumbing.Reference) func(context.Context, *git.Repository) ([]*plumbing.Reference, error) {
	return func(context.Context, *git.Repository) ([]*plumbing.Reference, error) {
		return refs, nil
	}
}

func TestCheckReportsUpdateAvailable(t *testing.T) {
	dir, local := initCheckout(t)
	remote := plumbing.NewHash(strings.Repeat("3c2d1e0", 5) + "3c2d1")

	tr := New(runner.NewFake())
	tr.listRemote = cannedRefs(
		plumbing.NewHashReference("refs/heads/master", remote),
	)

	info, err := tr.Check(context.Background(), dir)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !info.HasUpdate {
		t.Fatal("HasUpdate = false, want true")
	}
	if info.Local != local.String() || info.Remote != remote.String() {
		t.Fatalf("revisions = %q / %q", info.Local, info.Remote)
	}
	if !strings.Contains(info.Message, short(local.String())) || !strings.Contains(info.Message, "3c2d1e0") {
		t.Fatalf("message = %q", info.Message)
	}
}

func TestCheckUpToDate(t *testing.T) {
	dir, local := initCheckout(t)

	tr := New(runner.NewFake())
	tr.listRemote = cannedRefs(
		plumbing.NewHashReference("refs/heads/master", local),
	)

	info, err := tr.Check(context.Background(), dir)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if info.HasUpdate {
		t.Fatal("HasUpdate = true for identical revisions")
	}
	if !strings.Contains(info.Message, "up to date") {
		t.Fatalf("message = %q", info.Message)
	}
}

func TestCheckUnreachableRemoteKeepsLocalRevision(t *testing.T) {
	dir, local := initCheckout(t)

	tr := New(runner.NewFake())
	tr.listRemote = func(context.Context, *git.Repository) ([]*plumbing.Reference, error) {
		return nil, errors.New("dial tcp: connection timed out")
	}

	info, err := tr.Check(context.Background(), dir)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
	if info.Local != local.String() {
		t.Fatalf("local revision lost on network error: %q", info.Local)
	}
}

func TestCheckRejectsNonRepository(t *testing.T) {
	tr := New(runner.NewFake())

	_, err := tr.Check(context.Background(), t.TempDir())
	if !errors.Is(err, ErrNotRepository) {
		t.Fatalf("err = %v, want ErrNotRepository", err)
	}
}

func TestCheckFallsBackToRemoteHead(t *testing.T) {
	dir, local := initCheckout(t)
	remote := plumbing.NewHash(strings.Repeat("a", 40))

	// The remote advertises a differently named default branch; HEAD
	// resolution still yields a comparable tip.
	tr := New(runner.NewFake())
	tr.listRemote = cannedRefs(
		plumbing.NewSymbolicReference(plumbing.HEAD, "refs/heads/main"),
		plumbing.NewHashReference("refs/heads/main", remote),
	)

	info, err := tr.Check(context.Background(), dir)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if info.Remote != remote.String() {
		t.Fatalf("remote = %q", info.Remote)
	}
	if !info.HasUpdate {
		t.Fatalf("HasUpdate = false for %s vs %s", short(local.String()), short(remote.String()))
	}
}

func TestPullRunsFastForwardOnly(t *testing.T) {
	fake := runner.NewFake()
	tr := New(fake)

	if err := tr.Pull(context.Background(), "/opt/index-tts"); err != nil {
		t.Fatalf("Pull: %v", err)
	}

	calls := fake.Calls()
	if len(calls) != 1 || calls[0].Command != "git" {
		t.Fatalf("calls = %+v", calls)
	}
	want := []string{"-C", "/opt/index-tts", "pull", "--ff-only"}
	if !slices.Equal(calls[0].Args, want) {
		t.Fatalf("args = %v, want %v", calls[0].Args, want)
	}
	if calls[0].Source != "update" {
		t.Fatalf("source = %q", calls[0].Source)
	}
}

func TestPullSurfacesFailure(t *testing.T) {
	fake := runner.NewFake()
	fake.Results["git"] = runner.Result{ExitCode: 1, LastStderr: "fatal: Not possible to fast-forward"}
	tr := New(fake)

	err := tr.Pull(context.Background(), "/opt/index-tts")
	if err == nil {
		t.Fatal("Pull should fail on non-zero exit")
	}
	if !strings.Contains(err.Error(), "fast-forward") {
		t.Fatalf("err = %v", err)
	}
}
