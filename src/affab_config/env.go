package affab_config

import (
	"context"
	"fmt"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// Env holds the process environment the helpers consult.
type Env struct {
	// CodeVersion is the git tag, branch or commit to deploy.
	CodeVersion string `env:"CODE_VERSION"`

	lookuper envconfig.Lookuper
}

func LoadEnv(ctx context.Context) (*Env, error) {
	return LoadEnvWith(ctx, envconfig.OsLookuper())
}

// LoadEnvWith reads Env from l. Tests pass envconfig.MapLookuper.
func LoadEnvWith(ctx context.Context, l envconfig.Lookuper) (*Env, error) {
	env := &Env{lookuper: l}
	if err := envconfig.ProcessWith(ctx, env, l); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	return env, nil
}

func SudoAsKey(role string) string {
	return fmt.Sprintf("%s_SUDO_AS", strings.ToUpper(role))
}

// SudoAs returns the user that commands for role should run as: the
// <ROLE>_SUDO_AS variable when set and non-empty, otherwise fallback.
func (e *Env) SudoAs(role, fallback string) string {
	if e == nil || e.lookuper == nil || role == "" {
		return fallback
	}

	if v, ok := e.lookuper.Lookup(SudoAsKey(role)); ok && v != "" {
		return v
	}

	return fallback
}
