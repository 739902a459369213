// Package repotrack compares the local index-tts checkout against its
// remote and pulls updates on demand.
package repotrack

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"voxup/runner"
)

var (
	// ErrNetwork reports that the remote could not be reached. Callers keep
	// showing the previous (stale) info rather than clearing it.
	ErrNetwork = errors.New("remote unreachable")
	// ErrNotRepository reports that the path is not a git checkout.
	ErrNotRepository = errors.New("not a git repository")
)

// Info is the result of one update check. It is recomputed on demand and
// never cached across checks.
type Info struct {
	Local     string
	Remote    string
	HasUpdate bool
	Message   string
}

const updateSource = "update"

// Tracker reads revisions with go-git and pulls through the command
// runner so the operator sees the full pull output on the log bus.
type Tracker struct {
	run runner.Runner

	// listRemote is swappable in tests; the default queries origin.
	listRemote func(ctx context.Context, repo *git.Repository) ([]*plumbing.Reference, error)
}

// New creates a Tracker.
func New(run runner.Runner) *Tracker {
	return &Tracker{run: run, listRemote: listOrigin}
}

// Check computes the local revision, queries the remote tip for the
// checked-out branch, and reports whether they differ.
func (t *Tracker) Check(ctx context.Context, path string) (Info, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %q", ErrNotRepository, path)
	}

	head, err := repo.Head()
	if err != nil {
		return Info{}, fmt.Errorf("read HEAD: %w", err)
	}
	local := head.Hash().String()

	refs, err := t.listRemote(ctx, repo)
	if err != nil {
		return Info{Local: local}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	remote, err := remoteTip(refs, head.Name())
	if err != nil {
		return Info{Local: local}, err
	}

	info := Info{
		Local:     local,
		Remote:    remote,
		HasUpdate: local != remote,
	}
	if info.HasUpdate {
		info.Message = fmt.Sprintf("update available (%s -> %s)", short(local), short(remote))
	} else {
		info.Message = fmt.Sprintf("up to date at %s", short(local))
	}
	return info, nil
}

// Pull fast-forwards the checkout. The pull output streams to the log bus
// under the "update" tag.
func (t *Tracker) Pull(ctx context.Context, path string) error {
	res, err := t.run.Run(ctx, runner.Spec{
		Source:  updateSource,
		Command: "git",
		Args:    []string{"-C", path, "pull", "--ff-only"},
	})
	if err != nil {
		return fmt.Errorf("pull: %w", err)
	}
	if !res.Success {
		msg := fmt.Sprintf("git pull exited with code %d", res.ExitCode)
		if res.LastStderr != "" {
			msg += ": " + res.LastStderr
		}
		return fmt.Errorf("%w: %s", ErrNetwork, msg)
	}
	return nil
}

func listOrigin(ctx context.Context, repo *git.Repository) ([]*plumbing.Reference, error) {
	remote, err := repo.Remote(git.DefaultRemoteName)
	if err != nil {
		return nil, err
	}
	return remote.ListContext(ctx, &git.ListOptions{})
}

// remoteTip picks the remote hash for the local branch, falling back to
// the remote HEAD for detached or renamed checkouts.
func remoteTip(refs []*plumbing.Reference, branch plumbing.ReferenceName) (string, error) {
	var headTarget plumbing.ReferenceName
	var headHash string

	for _, ref := range refs {
		switch {
		case ref.Name() == branch:
			return ref.Hash().String(), nil
		case ref.Name() == plumbing.HEAD:
			if ref.Type() == plumbing.SymbolicReference {
				headTarget = ref.Target()
			} else {
				headHash = ref.Hash().String()
			}
		}
	}
	if headTarget != "" {
		for _, ref := range refs {
			if ref.Name() == headTarget {
				return ref.Hash().String(), nil
			}
		}
	}
	if headHash != "" {
		return headHash, nil
	}
	return "", fmt.Errorf("remote has no ref for %s", branch)
}

func short(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}
