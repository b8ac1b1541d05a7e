// Package code_checkout clones a git repository into a unique directory on
// the remote host for the duration of a block of work.
package code_checkout

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sync"

	"github.com/alessio/shellescape"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/pborman/uuid"

	"affab/src/affab_config"
	"affab/src/prompt"
	"affab/src/remote"
)

const (
	TmpRoot = "/tmp/"

	DefaultRef = "master"

	refQuestion = "Git tag, branch, or commit to deploy"
)

var newDirName = func() string {
	return uuid.NewUUID().String()
}

// CodeVersionSource decides which ref to deploy: CODE_VERSION when set,
// otherwise the operator's answer to a prompt. An answer given with
// promptOnce is remembered for later resolutions through the same source.
type CodeVersionSource struct {
	Env   *affab_config.Env
	Asker prompt.Asker

	mu         sync.Mutex
	remembered string
}

func NewCodeVersionSource(env *affab_config.Env, asker prompt.Asker) *CodeVersionSource {
	return &CodeVersionSource{Env: env, Asker: asker}
}

func (s *CodeVersionSource) Resolve(promptOnce bool) (string, error) {
	if s.Env != nil && s.Env.CodeVersion != "" {
		return s.Env.CodeVersion, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.remembered != "" {
		return s.remembered, nil
	}

	if s.Asker == nil {
		return "", fmt.Errorf("CODE_VERSION is not set and there is no one to ask")
	}

	ref, err := s.Asker.AskInput(refQuestion, DefaultRef)
	if err != nil {
		return "", fmt.Errorf("asking for the code version: %w", err)
	}

	if ref == "" {
		ref = DefaultRef
	}

	if promptOnce {
		s.remembered = ref
	}

	return ref, nil
}

type Options struct {
	GitRepoUrl string

	// SkipCleanup leaves the checkout on the host after Close.
	SkipCleanup bool

	// PromptOnce remembers a prompted ref on the CodeVersionSource.
	PromptOnce bool
}

// Checkout is a clone of Options.GitRepoUrl at Ref, living at Path on the
// remote host until Close.
type Checkout struct {
	Options Options
	Path    string
	Ref     string

	sh     *remote.Shell
	closed bool
}

// Prepare clones the repository into /tmp/<uuid> and checks out the ref
// chosen by source.
func Prepare(ctx context.Context, sh *remote.Shell, source *CodeVersionSource, opts Options) (*Checkout, error) {
	if opts.GitRepoUrl == "" {
		return nil, fmt.Errorf("repository url is required")
	}

	if _, err := transport.NewEndpoint(opts.GitRepoUrl); err != nil {
		return nil, fmt.Errorf("invalid repository url %q: %w", opts.GitRepoUrl, err)
	}

	ref, err := source.Resolve(opts.PromptOnce)
	if err != nil {
		return nil, err
	}

	name := newDirName()
	if name == "" {
		return nil, fmt.Errorf("generating checkout directory name")
	}

	tmp := sh.Cd(TmpRoot)

	// A v1 uuid collision means a previous run left this directory behind.
	exists, err := tmp.Exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if exists {
		slog.Warn("Removing stale checkout", "name", name)
		if _, err := tmp.Sudo(ctx, fmt.Sprintf("rm -rf %s*", name), remote.SudoOptions{}); err != nil {
			return nil, err
		}
	}

	c := &Checkout{
		Options: opts,
		Path:    path.Join(TmpRoot, name),
		Ref:     ref,
		sh:      sh,
	}

	slog.Info("Checking out code", "repo", opts.GitRepoUrl, "ref", ref, "path", c.Path)

	if err := c.clone(ctx, tmp, name); err != nil {
		if cerr := c.Close(ctx); cerr != nil {
			slog.Error("Failed to remove partial checkout", "path", c.Path, "err", cerr)
		}
		return nil, err
	}

	return c, nil
}

func (c *Checkout) clone(ctx context.Context, tmp *remote.Shell, name string) error {
	if _, err := tmp.Run(ctx, fmt.Sprintf("git clone %s %s", shellescape.Quote(c.Options.GitRepoUrl), name)); err != nil {
		return fmt.Errorf("cloning %s: %w", c.Options.GitRepoUrl, err)
	}

	repo := c.sh.Cd(c.Path)

	if _, err := repo.Run(ctx, "git checkout "+shellescape.Quote(c.Ref)); err != nil {
		return fmt.Errorf("checking out %s: %w", c.Ref, err)
	}

	if _, err := repo.Run(ctx, "rm -f .python-version"); err != nil {
		return err
	}

	return nil
}

// Close removes the checkout unless SkipCleanup is set. A failing removal
// is logged and ignored; only transport errors are returned. Close is
// idempotent.
func (c *Checkout) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true

	if c.Options.SkipCleanup {
		slog.Info("Leaving checkout in place", "path", c.Path)
		return nil
	}

	_, err := c.sh.WarnOnly().Sudo(ctx, fmt.Sprintf("rm -rf %s*", c.Path), remote.SudoOptions{})
	return err
}

// WithCode prepares a checkout, calls fn with its path and closes it,
// even if fn panics. fn's error is returned as is. A cleanup error is
// returned only when fn succeeded, and logged otherwise.
func WithCode(ctx context.Context, sh *remote.Shell, source *CodeVersionSource, opts Options, fn func(path string) error) (err error) {
	c, err := Prepare(ctx, sh, source, opts)
	if err != nil {
		return err
	}

	defer func() {
		cerr := c.Close(ctx)
		if cerr == nil {
			return
		}

		if err == nil {
			err = fmt.Errorf("cleaning up %s: %w", c.Path, cerr)
			return
		}

		slog.Error("Failed to clean up checkout", "path", c.Path, "err", cerr)
	}()

	return fn(c.Path)
}
