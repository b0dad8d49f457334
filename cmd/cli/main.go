// Command chartkeeper is the clinical-note editing client.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/and161185/chartkeeper/internal/config"
	"github.com/and161185/chartkeeper/internal/errs"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func saveToken(path, tok string, exp time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, ExpiresAt: exp})
}

func loadToken(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (run `chartkeeper token` first)")
	}
	return tf.AccessToken, nil
}

// tokenSubject reads the subject claim without verifying the signature; it only scopes the local cache.
func tokenSubject(tok string) (string, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// ---- utils ----

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func newLogger() *zap.Logger {
	level := zapcore.WarnLevel
	if os.Getenv("CHARTKEEPER_DEBUG") == "1" {
		level = zapcore.DebugLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// ---- root ----

type globalFlags struct {
	configPath string
	endpoint   string
	transport  string
	caPath     string
	insecure   bool
	plaintext  bool
}

func (g *globalFlags) load() (config.Client, error) {
	cfg, err := config.LoadClient(g.configPath)
	if err != nil {
		return cfg, err
	}
	if g.endpoint != "" {
		cfg.Endpoint = g.endpoint
	}
	if g.transport != "" {
		cfg.Transport = g.transport
	}
	if g.caPath != "" {
		cfg.CAPath = g.caPath
	}
	cfg.Insecure = cfg.Insecure || g.insecure
	cfg.Plaintext = cfg.Plaintext || g.plaintext
	return cfg, cfg.Validate()
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "chartkeeper",
		Short:         "chartkeeper - clinical note editor with offline autosave",
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", filepath.Join(config.Dir(), "config.yaml"), "config file")
	pf.StringVar(&g.endpoint, "endpoint", "", "record store address (host:port for grpc, URL for http)")
	pf.StringVar(&g.transport, "transport", "", "grpc or http")
	pf.StringVar(&g.caPath, "cacert", "", "CA cert (PEM)")
	pf.BoolVar(&g.insecure, "insecure", false, "skip cert verify (dev)")
	pf.BoolVar(&g.plaintext, "plaintext", false, "no TLS (dev)")

	root.AddCommand(
		newVersionCmd(),
		newInitKeyCmd(g),
		newTokenCmd(g),
		newCreateCmd(g),
		newShowCmd(g),
		newEditCmd(g),
		newFinalizeCmd(g),
		newDeleteCmd(g),
		newRestoreCmd(g),
		newPurgeCmd(g),
		newHistoryCmd(g),
		newPendingCmd(g),
	)
	return root
}

// main runs the command tree and maps errors to exit codes.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fail(err)
	}
}

// exitCode maps an error kind to a process exit status.
func exitCode(err error) int {
	switch errs.KindOf(err) {
	case errs.KindValidation, errs.KindInvalidTransition, errs.KindRestorePending:
		return 3
	case errs.KindNotFound, errs.KindGone:
		return 4
	case errs.KindForbidden, errs.KindUnauthorized:
		return 5
	case errs.KindTransient, errs.KindOffline, errs.KindRateLimited:
		return 6
	}
	return 1
}

func fail(err error) {
	msg := err.Error()
	if k := errs.KindOf(err); k != errs.KindUnknown {
		msg = strings.ToLower(k.String()) + ": " + msg
	}
	errorf(os.Stderr, "%s\n", msg)
	os.Exit(exitCode(err))
}
