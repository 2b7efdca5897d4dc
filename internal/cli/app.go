package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/auth"
	"github.com/dmitrijs2005/vaultsync/internal/cache"
	"github.com/dmitrijs2005/vaultsync/internal/config"
	"github.com/dmitrijs2005/vaultsync/internal/keyringx"
	"github.com/dmitrijs2005/vaultsync/internal/logging"
	"github.com/dmitrijs2005/vaultsync/internal/store"
	"github.com/dmitrijs2005/vaultsync/internal/vault"
)

// App wires the configuration, the remote store, the local cache and the
// vault service behind the REPL commands.
type App struct {
	config  *config.Config
	service *vault.Service
	cache   *cache.Cache
	reader  *bufio.Reader
	out     io.Writer
}

// NewApp builds the application from config: opens the local cache, selects
// the remote store backend, and assembles the vault service on top.
func NewApp(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	c, err := cache.Open(ctx, cfg.CacheDSN)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	st, err := newStore(ctx, cfg, log)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	machine := auth.NewMachine(st, log, auth.WithMetaCache(c))
	service := vault.NewService(machine, st, log,
		vault.WithSnapshotCache(c),
		vault.WithCleaner(vault.NewCleaner(st, vault.AESGCM{}, log,
			vault.WithBatchSize(cfg.CleanupBatchSize))),
	)

	return &App{
		config:  cfg,
		service: service,
		cache:   c,
		reader:  bufio.NewReader(os.Stdin),
		out:     os.Stdout,
	}, nil
}

// newStore selects and constructs the remote store backend. Credentials come
// from the environment or the OS keyring, never from the config file.
func newStore(ctx context.Context, cfg *config.Config, log logging.Logger) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendGitHub:
		return store.NewGitHub(store.GitHubConfig{
			Owner:   cfg.GitHubOwner,
			Repo:    cfg.GitHubRepo,
			Branch:  cfg.GitHubBranch,
			Token:   credential("VAULTSYNC_GITHUB_TOKEN", "github"),
			Timeout: cfg.RequestTimeout,
		}, log), nil
	case config.BackendS3:
		return store.NewS3(ctx, store.S3Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3Endpoint,
			Prefix:       cfg.S3Prefix,
			AccessKey:    credential("VAULTSYNC_S3_ACCESS_KEY", "s3-access-key"),
			SecretKey:    credential("VAULTSYNC_S3_SECRET_KEY", "s3-secret-key"),
		}, log)
	case config.BackendPostgres:
		return store.OpenPostgres(ctx, cfg.PostgresDSN, log)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// credential resolves a secret from the environment first, then the OS
// keyring.
func credential(envVar, keyringName string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	if v, err := keyringx.GetToken(keyringName); err == nil {
		return v
	}
	return ""
}

// Run resolves the initial authentication state and starts the REPL.
func (a *App) Run(ctx context.Context) {
	defer a.cache.Close()

	initCtx, cancel := context.WithTimeout(ctx, a.config.RequestTimeout)
	a.service.Initialize(initCtx)
	cancel()

	fmt.Fprintln(a.out, "vaultsync CLI (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.statusLine, scanner)
}

func (a *App) isUnlocked() bool {
	_, ok := a.service.State().(auth.Unlocked)
	return ok
}

// statusLine renders the authentication state for the REPL prompt.
func (a *App) statusLine() string {
	switch s := a.service.State().(type) {
	case auth.Initializing:
		return "initializing"
	case auth.NotConfigured:
		return "not configured"
	case auth.Locked:
		if s.LockedOut(time.Now()) {
			return "locked out"
		}
		return "locked"
	case auth.Unlocked:
		return "unlocked"
	case auth.Failed:
		return "unavailable"
	default:
		return "unknown"
	}
}
