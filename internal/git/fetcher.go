package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"

	"git.home.luguber.info/inful/projectbuilder/internal/config"
	ferrors "git.home.luguber.info/inful/projectbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/projectbuilder/internal/logfields"
	"git.home.luguber.info/inful/projectbuilder/internal/project"
	"git.home.luguber.info/inful/projectbuilder/internal/retry"
	"git.home.luguber.info/inful/projectbuilder/internal/workspace"
)

const (
	remoteName   = "origin"
	markerPerm   = 0o600
	workdirPerms = 0o750
)

// FetchRequest identifies the repository, ref and working copy of one fetch.
type FetchRequest struct {
	URL  string
	Ref  string
	Auth *config.AuthConfig
	Dir  string
}

// Fetcher clones or updates working copies.
type Fetcher struct {
	mu           sync.RWMutex
	policy       retry.Policy
	shallowDepth int
}

// NewFetcher creates a fetcher that retries transient failures per policy.
func NewFetcher(policy retry.Policy, shallowDepth int) *Fetcher {
	return &Fetcher{policy: policy, shallowDepth: shallowDepth}
}

// Reconfigure swaps retry and depth settings for subsequent fetches.
func (f *Fetcher) Reconfigure(policy retry.Policy, shallowDepth int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.policy = policy
	f.shallowDepth = shallowDepth
}

func (f *Fetcher) settings() (retry.Policy, int) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.policy, f.shallowDepth
}

// Fetch brings req.Dir to req.Ref and returns the checked out commit hash.
// Errors satisfy errors.Is(err, project.ErrSourceFetch).
func (f *Fetcher) Fetch(ctx context.Context, req FetchRequest) (string, error) {
	if req.Ref == "" {
		req.Ref = project.DefaultRef
	}
	policy, depth := f.settings()

	var hash string
	err := policy.Do(ctx, isTransient, func(attempt int) error {
		if attempt > 1 {
			slog.Warn("Retrying source fetch", logfields.URL(req.URL), logfields.Attempt(attempt))
		}
		h, err := f.fetchOnce(ctx, req, depth)
		if err != nil {
			markInvalid(req.Dir, err)
			return err
		}
		hash = h
		return nil
	})
	if err != nil {
		return "", project.ErrSourceFetch.WithCause(err).
			WithContext("url", req.URL).
			WithContext("ref", req.Ref)
	}
	return hash, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, req FetchRequest, depth int) (string, error) {
	auth, err := authMethod(req.Auth)
	if err != nil {
		return "", err
	}

	if IsInvalid(req.Dir) {
		slog.Info("Discarding invalid working copy", logfields.Path(req.Dir))
		if err := resetWorkingCopy(req.Dir); err != nil {
			return "", err
		}
	}

	repo, err := openExisting(req.Dir, req.URL)
	if err != nil {
		return "", err
	}

	if repo == nil {
		slog.Debug("Cloning repository", logfields.URL(req.URL), logfields.Ref(req.Ref), logfields.Path(req.Dir))
		if err := os.MkdirAll(filepath.Dir(req.Dir), workdirPerms); err != nil {
			return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "create workspace directory").
				WithContext("path", filepath.Dir(req.Dir)).Build()
		}
		repo, err = git.PlainCloneContext(ctx, req.Dir, false, &git.CloneOptions{
			URL:        req.URL,
			Auth:       auth,
			RemoteName: remoteName,
			Depth:      depth,
			Tags:       git.AllTags,
			NoCheckout: true,
		})
		if err != nil {
			return "", classifyGitError(err, "clone", req.URL)
		}
	} else {
		slog.Debug("Fetching repository updates", logfields.URL(req.URL), logfields.Ref(req.Ref), logfields.Path(req.Dir))
		err = repo.FetchContext(ctx, &git.FetchOptions{
			RemoteName: remoteName,
			Auth:       auth,
			Depth:      depth,
			Force:      true,
			Tags:       git.AllTags,
			RefSpecs: []ggitcfg.RefSpec{
				"+refs/heads/*:refs/remotes/origin/*",
				"+refs/tags/*:refs/tags/*",
			},
		})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return "", classifyGitError(err, "fetch", req.URL)
		}
	}

	hash, err := resolveRef(repo, req.Ref)
	if err != nil {
		return "", err
	}
	if err := hardReset(repo, hash); err != nil {
		return "", err
	}

	slog.Info("Working copy ready", logfields.URL(req.URL), logfields.Ref(req.Ref), logfields.Commit(hash.String()))
	return hash.String(), nil
}

// openExisting returns nil when no usable working copy exists. A repository
// pointing at another remote or failing to open is removed for a fresh clone.
func openExisting(dir, url string) (*git.Repository, error) {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		if err := resetWorkingCopy(dir); err != nil {
			return nil, err
		}
		return nil, nil
	}
	repo, err := git.PlainOpen(dir)
	if err == nil {
		if remote, rerr := repo.Remote(remoteName); rerr == nil && len(remote.Config().URLs) > 0 && remote.Config().URLs[0] == url {
			return repo, nil
		}
		slog.Info("Working copy remote changed, recloning", logfields.Path(dir), logfields.URL(url))
	} else {
		slog.Warn("Working copy unreadable, recloning", logfields.Path(dir), logfields.Error(err))
	}
	if err := resetWorkingCopy(dir); err != nil {
		return nil, err
	}
	return nil, nil
}

// resolveRef tries a remote branch, then a tag, then a commit hash or revision.
func resolveRef(repo *git.Repository, ref string) (plumbing.Hash, error) {
	if r, err := repo.Reference(plumbing.NewRemoteReferenceName(remoteName, ref), true); err == nil {
		return r.Hash(), nil
	}
	if r, err := repo.Reference(plumbing.NewTagReferenceName(ref), true); err == nil {
		if tag, terr := repo.TagObject(r.Hash()); terr == nil {
			commit, cerr := tag.Commit()
			if cerr != nil {
				return plumbing.ZeroHash, ErrInvalidRef.WithCause(cerr).WithContext("ref", ref)
			}
			return commit.Hash, nil
		}
		return r.Hash(), nil
	}
	h, err := repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return plumbing.ZeroHash, ErrInvalidRef.WithCause(err).WithContext("ref", ref)
	}
	if _, err := repo.CommitObject(*h); err != nil {
		return plumbing.ZeroHash, ErrInvalidRef.WithCause(err).WithContext("ref", ref)
	}
	return *h, nil
}

// hardReset detaches HEAD at hash, discards local modifications and removes
// untracked files that are not ignored.
func hardReset(repo *git.Repository, hash plumbing.Hash) error {
	wt, err := repo.Worktree()
	if err != nil {
		return classifyGitError(fmt.Errorf("worktree: %w", err), "reset", "")
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
		return classifyGitError(fmt.Errorf("checkout %s: %w", hash, err), "checkout", "")
	}
	if err := wt.Reset(&git.ResetOptions{Commit: hash, Mode: git.HardReset}); err != nil {
		return classifyGitError(fmt.Errorf("hard reset %s: %w", hash, err), "reset", "")
	}
	// untracked leftovers of earlier builds must not survive into the next one
	if err := wt.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return classifyGitError(fmt.Errorf("clean: %w", err), "clean", "")
	}
	return nil
}

func markerPath(dir string) string { return workspace.InvalidMarker(dir) }

// IsInvalid reports whether dir was marked invalid by a failed fetch.
func IsInvalid(dir string) bool {
	_, err := os.Stat(markerPath(dir))
	return err == nil
}

// markInvalid flags a working copy that a failed fetch may have left half updated.
func markInvalid(dir string, cause error) {
	if _, err := os.Stat(dir); err != nil {
		return
	}
	if err := os.WriteFile(markerPath(dir), []byte(cause.Error()+"\n"), markerPerm); err != nil {
		slog.Warn("Failed to mark working copy invalid", logfields.Path(dir), logfields.Error(err))
		return
	}
	slog.Warn("Marked working copy invalid", logfields.Path(dir), logfields.Error(cause))
}

// resetWorkingCopy removes the working copy and its invalid marker.
func resetWorkingCopy(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "remove working copy").
			WithContext("path", dir).Build()
	}
	if err := os.Remove(markerPath(dir)); err != nil && !os.IsNotExist(err) {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "remove invalid marker").
			WithContext("path", markerPath(dir)).Build()
	}
	return nil
}

