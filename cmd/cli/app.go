package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/chartkeeper/internal/autosave"
	"github.com/and161185/chartkeeper/internal/clock"
	"github.com/and161185/chartkeeper/internal/config"
	"github.com/and161185/chartkeeper/internal/connectivity"
	"github.com/and161185/chartkeeper/internal/crypto/clientcrypto"
	"github.com/and161185/chartkeeper/internal/localcache"
	"github.com/and161185/chartkeeper/internal/remote"
	"github.com/and161185/chartkeeper/internal/session"
)

// app is the editing core wired for one command invocation.
type app struct {
	cfg     config.Client
	log     *zap.Logger
	rc      remote.Client
	mon     *connectivity.Monitor
	cache   *localcache.Store
	manager *session.Manager
	closers []func()
}

func (a *app) Close() {
	if a.manager != nil {
		a.manager.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.log.Sync()
}

func readPassphrase(cmd *cobra.Command) ([]byte, error) {
	if v := os.Getenv("CHARTKEEPER_PASSPHRASE"); v != "" {
		return []byte(v), nil
	}
	askf(cmd.ErrOrStderr(), "passphrase")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, errors.New("empty passphrase")
	}
	return []byte(line), nil
}

func httpBaseURL(cfg config.Client) string {
	if strings.Contains(cfg.Endpoint, "://") {
		return cfg.Endpoint
	}
	if cfg.Plaintext {
		return "http://" + cfg.Endpoint
	}
	return "https://" + cfg.Endpoint
}

// dialRemote builds the record-store client and the matching health checker.
func dialRemote(cfg config.Client, token string) (remote.Client, connectivity.Checker, func(), error) {
	switch cfg.Transport {
	case config.TransportHTTP:
		hc := remote.NewRateLimitedHTTPClient(10, 20)
		base := httpBaseURL(cfg)
		return remote.NewHTTPClient(base, token, hc), connectivity.NewHTTPHealth(base, hc), func() {}, nil
	default:
		cc, err := remote.Dial(cfg.Endpoint, remote.DialOptions{
			CAPath:   cfg.CAPath,
			SkipTLS:  cfg.Plaintext,
			Insecure: cfg.Insecure,
			Token:    token,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("dial %s: %w", cfg.Endpoint, err)
		}
		return remote.NewGRPCClient(cc), connectivity.NewGRPCHealth(cc), func() { _ = cc.Close() }, nil
	}
}

// openApp loads config, token and keyring, opens the encrypted cache and connects to the record store.
func openApp(cmd *cobra.Command, g *globalFlags) (*app, error) {
	cfg, err := g.load()
	if err != nil {
		return nil, err
	}
	log := newLogger()
	a := &app{cfg: cfg, log: log}

	token, err := loadToken(cfg.TokenPath)
	if err != nil {
		return nil, err
	}
	subject, err := tokenSubject(token)
	if err != nil {
		return nil, err
	}
	kr, err := clientcrypto.ReadKeyring(cfg.KeyringPath)
	if err != nil {
		return nil, fmt.Errorf("%w (run `chartkeeper init-key` first)", err)
	}
	pass, err := readPassphrase(cmd)
	if err != nil {
		return nil, err
	}
	cipher, err := kr.Unlock(pass, "chartkeeper:"+subject)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.CachePath), 0o700); err != nil {
		return nil, err
	}
	backend, err := localcache.OpenSQLite(cfg.CachePath)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = backend.Close() })
	cache := localcache.NewStore(backend, cipher, log.Named("cache"))
	a.cache = cache

	rc, checker, closeRC, err := dialRemote(cfg, token)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, closeRC)
	a.rc = remote.WithTimeout(rc, cfg.RequestTimeout)

	a.mon = connectivity.NewMonitor(false)
	prober := connectivity.NewProber(checker, a.mon, cfg.ProbeInterval, cfg.RequestTimeout, log.Named("probe"))
	ctx, cancel := context.WithCancel(context.Background())
	prober.ProbeOnce(cmd.Context())
	go prober.Run(ctx)
	a.closers = append(a.closers, cancel)

	a.manager = session.NewManager(a.rc, cache, a.mon, clock.New(),
		autosave.Options{Debounce: cfg.Debounce, WriteTimeout: cfg.RequestTimeout}, log)
	return a, nil
}
