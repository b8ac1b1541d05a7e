// Package pyenv installs pyenv system-wide on the remote host and manages
// Python versions and virtualenvs under it.
package pyenv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/alessio/shellescape"

	"affab/src/remote"
)

const (
	Root   = "/usr/local/lib/.pyenv"
	TmpDir = Root + "/tmp/"

	repoBase = "https://github.com/pyenv/"
)

var ErrNotImplemented = errors.New("replacing an existing virtualenv is not implemented")

var plugins = []string{"pyenv-virtualenv", "pyenv-pip-rehash"}

// InstallPyenv clones pyenv and its plugins into Root. Nothing is done if
// Root already exists.
func InstallPyenv(ctx context.Context, sh *remote.Shell) error {
	exists, err := sh.Exists(ctx, Root)
	if err != nil {
		return err
	}

	if exists {
		slog.Info("pyenv already installed", "root", Root)
		return nil
	}

	clones := [][2]string{{repoBase + "pyenv.git", Root}}
	for _, p := range plugins {
		clones = append(clones, [2]string{repoBase + p + ".git", path.Join(Root, "plugins", p)})
	}

	for _, c := range clones {
		if _, err := sh.Sudo(ctx, fmt.Sprintf("git clone %s %s", c[0], c[1]), remote.SudoOptions{}); err != nil {
			return fmt.Errorf("cloning %s: %w", c[0], err)
		}
	}

	return nil
}

type directive struct {
	needle string
	line   string
}

// Directives are the profile lines pyenv needs, in the order they are
// appended. A line is considered present when its needle is found.
var directives = []directive{
	{"export PYENV_ROOT", fmt.Sprintf("export PYENV_ROOT=%q", Root)},
	{`export PATH="$PYENV_ROOT/bin`, `export PATH="$PYENV_ROOT/bin:$PATH"`},
	{"pyenv init -", `eval "$(pyenv init -)"`},
	{"pyenv virtualenv-init -", `eval "$(pyenv virtualenv-init -)"`},
}

type DotFileOptions struct {
	// HomeDir defaults to "~".
	HomeDir string

	// DotFile defaults to ".bash_profile".
	DotFile string

	// User, when set, is given ownership of the file after it is changed.
	User string
}

// AddPyenvToDotFile appends whichever pyenv directives are missing from the
// profile file in a single write. It reports the lines appended.
//
// The path is expanded as the login user before any sudo command runs,
// since sudo -H points "~" at root's home.
func AddPyenvToDotFile(ctx context.Context, sh *remote.Shell, opts DotFileOptions) ([]string, error) {
	if opts.HomeDir == "" {
		opts.HomeDir = "~"
	}
	if opts.DotFile == "" {
		opts.DotFile = ".bash_profile"
	}

	resolved, err := sh.Expand(ctx, path.Join(opts.HomeDir, opts.DotFile))
	if err != nil {
		return nil, err
	}
	dotFile := shellescape.Quote(resolved)

	exists, err := sh.Exists(ctx, dotFile)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, d := range directives {
		if exists {
			found, err := sh.SudoTest(ctx, fmt.Sprintf("grep -q %s %s", shellescape.Quote(d.needle), dotFile), remote.SudoOptions{})
			if err != nil {
				return nil, err
			}
			if found {
				continue
			}
		}

		missing = append(missing, d.line)
	}

	if len(missing) == 0 {
		slog.Debug("Profile already set up for pyenv", "dotFile", resolved)
		return nil, nil
	}

	lenient := sh.WarnOnly()

	args := append([]string{"printf", `%s\n`, ""}, missing...)
	if _, err := lenient.Sudo(ctx, fmt.Sprintf("%s >> %s", shellescape.QuoteCommand(args), dotFile), remote.SudoOptions{}); err != nil {
		return nil, err
	}

	if opts.User != "" {
		if _, err := lenient.Sudo(ctx, fmt.Sprintf("chown %[1]s:%[1]s %s", opts.User, dotFile), remote.SudoOptions{}); err != nil {
			return nil, err
		}
	}

	return missing, nil
}

// Installed reports whether pyenv lists name as a version or virtualenv.
// The pipeline's exit status decides, so error text is never taken for a
// listing.
func Installed(ctx context.Context, sh *remote.Shell, name string) (bool, error) {
	return sh.SudoTest(ctx, fmt.Sprintf(`pyenv versions | grep -q "^[ ]*%s$"`, name), remote.SudoOptions{})
}

// InstallPyenvEnvironment installs Python version if needed, then creates
// the virtualenv virtualenvName from it if it does not exist.
//
// Replacing an existing virtualenv is not supported: with replaceExisting
// set and the virtualenv present, ErrNotImplemented is returned before
// anything is changed.
func InstallPyenvEnvironment(ctx context.Context, sh *remote.Shell, version, virtualenvName string, replaceExisting bool) error {
	versionExists, err := Installed(ctx, sh, version)
	if err != nil {
		return err
	}

	virtualenvExists, err := Installed(ctx, sh, virtualenvName)
	if err != nil {
		return err
	}

	if virtualenvExists && replaceExisting {
		return fmt.Errorf("virtualenv %s: %w", virtualenvName, ErrNotImplemented)
	}

	if !versionExists {
		if err := installVersion(ctx, sh, version); err != nil {
			return err
		}
	}

	if virtualenvExists {
		slog.Info("Virtualenv already exists", "name", virtualenvName)
		return nil
	}

	// pyenv virtualenv prompts and exits non-zero if the name is taken, and
	// upgrading pip is not essential.
	lenient := sh.WarnOnly()
	if _, err := lenient.Sudo(ctx, fmt.Sprintf("pyenv virtualenv %s %s", version, virtualenvName), remote.SudoOptions{}); err != nil {
		return err
	}
	if _, err := lenient.Sudo(ctx, fmt.Sprintf("PYENV_VERSION=%s pip install --upgrade pip", virtualenvName), remote.SudoOptions{}); err != nil {
		return err
	}

	return nil
}

func installVersion(ctx context.Context, sh *remote.Shell, version string) error {
	if _, err := sh.WarnOnly().Sudo(ctx, "apt-get install -y ca-certificates", remote.SudoOptions{}); err != nil {
		return err
	}

	// Builds go to TmpDir since /tmp may be mounted noexec.
	exists, err := sh.Exists(ctx, TmpDir)
	if err != nil {
		return err
	}

	if !exists {
		for _, line := range []string{"mkdir " + TmpDir, "chmod 777 " + TmpDir} {
			if _, err := sh.Sudo(ctx, line, remote.SudoOptions{}); err != nil {
				return err
			}
		}
	}

	if _, err := sh.Sudo(ctx, fmt.Sprintf("TMPDIR=%s pyenv install -s %s", TmpDir, version), remote.SudoOptions{}); err != nil {
		return fmt.Errorf("installing python %s: %w", version, err)
	}

	return nil
}

// UninstallPyenvEnvironment removes the virtualenv. Failures are logged and
// ignored.
func UninstallPyenvEnvironment(ctx context.Context, sh *remote.Shell, virtualenvName string) error {
	lenient := sh.WarnOnly()

	for _, line := range []string{
		"pyenv deactivate " + virtualenvName,
		"pyenv uninstall -f " + virtualenvName,
	} {
		if _, err := lenient.Sudo(ctx, line, remote.SudoOptions{}); err != nil {
			return err
		}
	}

	return nil
}
