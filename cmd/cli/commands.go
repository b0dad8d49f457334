package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/spf13/cobra"

	"github.com/and161185/chartkeeper/internal/clock"
	"github.com/and161185/chartkeeper/internal/conflict"
	"github.com/and161185/chartkeeper/internal/crypto/clientcrypto"
	"github.com/and161185/chartkeeper/internal/errs"
	"github.com/and161185/chartkeeper/internal/history"
	"github.com/and161185/chartkeeper/internal/model"
	"github.com/and161185/chartkeeper/internal/service"
	"github.com/and161185/chartkeeper/internal/session"
)

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.FromString(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad note id %q", errs.ErrValidation, s)
	}
	return id, nil
}

// parseSets turns field=value pairs into one patch. "duration" takes minutes.
func parseSets(sets []string) (model.Patch, error) {
	var p model.Patch
	for _, kv := range sets {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return p, fmt.Errorf("%w: expected field=value, got %q", errs.ErrValidation, kv)
		}
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.ReplaceAll(value, `\n`, "\n")
		if name == "duration" {
			var d int
			if _, err := fmt.Sscanf(value, "%d", &d); err != nil {
				return p, fmt.Errorf("%w: duration must be minutes, got %q", errs.ErrValidation, value)
			}
			p = p.Merge(model.Patch{DurationMinutes: model.Int(d)})
			continue
		}
		fp, err := model.PatchField(name, value)
		if err != nil {
			return p, err
		}
		p = p.Merge(fp)
	}
	return p, p.Validate()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chartkeeper %s (%s)\n", version, buildDate)
		},
	}
}

func newInitKeyCmd(g *globalFlags) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init-key",
		Short: "Create the passphrase-protected key that encrypts the local backup cache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfg.KeyringPath); err == nil && !force {
				return fmt.Errorf("%s exists (use --force to replace it; existing backups become unreadable)", cfg.KeyringPath)
			}
			pass, err := readPassphrase(cmd)
			if err != nil {
				return err
			}
			kr, err := clientcrypto.NewKeyring(pass)
			if err != nil {
				return err
			}
			if err := kr.Write(cfg.KeyringPath); err != nil {
				return err
			}
			successf(cmd.OutOrStdout(), "key written to %s\n", cfg.KeyringPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing key")
	return cmd
}

func newTokenCmd(g *globalFlags) *cobra.Command {
	var (
		signKey    string
		user       string
		workspaces []string
		ttl        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue and store a bearer token signed with the server key (development)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if signKey == "" {
				signKey = os.Getenv("CHARTKEEPER_JWT_KEY")
			}
			if signKey == "" {
				return fmt.Errorf("%w: --key or CHARTKEEPER_JWT_KEY is required", errs.ErrValidation)
			}
			uid, err := uuid.FromString(user)
			if err != nil {
				return fmt.Errorf("%w: bad --user: %v", errs.ErrValidation, err)
			}
			ws := make([]uuid.UUID, 0, len(workspaces))
			for _, w := range workspaces {
				id, err := uuid.FromString(w)
				if err != nil {
					return fmt.Errorf("%w: bad --workspace %q", errs.ErrValidation, w)
				}
				ws = append(ws, id)
			}
			tok, exp, err := service.NewTokenService([]byte(signKey), ttl, clock.New()).Issue(uid, ws)
			if err != nil {
				return err
			}
			if err := saveToken(cfg.TokenPath, tok, exp); err != nil {
				return err
			}
			successf(cmd.OutOrStdout(), "token saved, expires %s\n", exp.UTC().Format(time.RFC3339))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&signKey, "key", "", "HS256 signing key")
	f.StringVar(&user, "user", "", "clinician id")
	f.StringSliceVar(&workspaces, "workspace", nil, "accessible workspace id (repeatable)")
	f.DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newCreateCmd(g *globalFlags) *cobra.Command {
	var (
		client    string
		workspace string
		sessionAt string
		sets      []string
	)
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a draft note",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, g)
			if err != nil {
				return err
			}
			defer a.Close()
			if workspace == "" {
				workspace = a.cfg.WorkspaceID
			}
			in, err := buildNewNote(client, workspace, sessionAt, sets)
			if err != nil {
				return err
			}
			return runCreate(cmd.Context(), a.manager, in, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&client, "client", "", "client id")
	f.StringVar(&workspace, "workspace", "", "workspace id (defaults to config workspace_id)")
	f.StringVar(&sessionAt, "session-at", "", "session time, RFC3339")
	f.StringArrayVar(&sets, "set", nil, "initial field=value (repeatable)")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}

func buildNewNote(client, workspace, sessionAt string, sets []string) (model.NewNote, error) {
	var in model.NewNote
	var err error
	if in.ClientID, err = uuid.FromString(client); err != nil {
		return in, fmt.Errorf("%w: bad --client", errs.ErrValidation)
	}
	if in.WorkspaceID, err = uuid.FromString(workspace); err != nil {
		return in, fmt.Errorf("%w: bad --workspace", errs.ErrValidation)
	}
	if sessionAt != "" {
		t, err := time.Parse(time.RFC3339, sessionAt)
		if err != nil {
			return in, fmt.Errorf("%w: bad --session-at: %v", errs.ErrValidation, err)
		}
		in.SessionAt = &t
	}
	p, err := parseSets(sets)
	if err != nil {
		return in, err
	}
	in.Content = model.Content{}.Apply(p)
	return in, nil
}

func runCreate(ctx context.Context, m *session.Manager, in model.NewNote, out io.Writer) error {
	h, err := m.Create(ctx, in)
	if err != nil {
		return err
	}
	defer h.Dispose()
	successf(out, "created %s\n", h.ID())
	return nil
}

func newShowCmd(g *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <note-id>",
		Short: "Show a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(cmd, g)
			if err != nil {
				return err
			}
			defer a.Close()
			return runShow(cmd.Context(), a.manager, id, asJSON, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the server record as JSON")
	return cmd
}

func runShow(ctx context.Context, m *session.Manager, id uuid.UUID, asJSON bool, out io.Writer) error {
	h, err := m.Open(ctx, id)
	if err != nil {
		return err
	}
	defer h.Dispose()
	if asJSON {
		printJSON(out, h.Note())
		return nil
	}
	printNote(out, h.Note(), h.Content())
	if o, b := h.Conflict(); o == conflict.LocalNewer {
		fmt.Fprintln(out)
		warnf(out, "unsynced local edits from %s; run `chartkeeper edit %s` to restore or discard them\n",
			b.Timestamp.Local().Format(time.RFC3339), id)
	}
	return nil
}

func newEditCmd(g *globalFlags) *cobra.Command {
	var (
		sets    []string
		restore bool
		discard bool
	)
	cmd := &cobra.Command{
		Use:   "edit <note-id>",
		Short: "Edit a note; drafts autosave, finalized notes are amended",
		Long: `Without --set, starts a line editor reading "field: text" lines from stdin.
Commands: :w flush, :s status, :p print, :q quit.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if restore && discard {
				return fmt.Errorf("%w: --restore and --discard are exclusive", errs.ErrValidation)
			}
			a, err := openApp(cmd, g)
			if err != nil {
				return err
			}
			defer a.Close()
			return runEdit(cmd.Context(), a.manager, id, editOptions{
				sets:    sets,
				restore: restore,
				discard: discard,
			}, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringArrayVar(&sets, "set", nil, "field=value to apply and flush (repeatable)")
	f.BoolVar(&restore, "restore", false, "restore newer local edits without asking")
	f.BoolVar(&discard, "discard", false, "discard newer local edits without asking")
	return cmd
}

type editOptions struct {
	sets    []string
	restore bool
	discard bool
}

func runEdit(ctx context.Context, m *session.Manager, id uuid.UUID, opts editOptions, in io.Reader, out io.Writer) error {
	h, err := m.Open(ctx, id)
	if err != nil {
		return err
	}
	defer h.Dispose()

	r := bufio.NewReader(in)
	if err := resolveBackup(ctx, h, opts, r, out); err != nil {
		return err
	}
	if len(opts.sets) > 0 {
		p, err := parseSets(opts.sets)
		if err != nil {
			return err
		}
		if err := h.Edit(ctx, p); err != nil {
			return err
		}
		if err := h.Flush(ctx); err != nil {
			return err
		}
		successf(out, "saved (v%d)\n", h.Note().Version)
		return nil
	}
	return lineEditor(ctx, h, r, out)
}

func resolveBackup(ctx context.Context, h *session.Handle, opts editOptions, r *bufio.Reader, out io.Writer) error {
	o, b := h.Conflict()
	if o != conflict.LocalNewer || b == nil {
		return nil
	}
	restore := opts.restore
	if !opts.restore && !opts.discard {
		warnf(out, "this note has unsynced local edits from %s\n", b.Timestamp.Local().Format(time.RFC3339))
		printDiff(out, history.Diff(history.Current(h.Note()), model.Note{Content: b.Content}.Snapshot(0, b.Timestamp)))
		askf(out, "restore them? [r]estore/[d]iscard")
		line, err := r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "r", "restore":
			restore = true
		case "d", "discard":
		default:
			return fmt.Errorf("%w: answer restore or discard", errs.ErrRestorePending)
		}
	}
	if restore {
		if err := h.RestoreBackup(ctx); err != nil {
			return fmt.Errorf("restore local edits: %w", err)
		}
		successf(out, "local edits restored\n")
		return nil
	}
	if err := h.DiscardBackup(ctx); err != nil {
		return err
	}
	infof(out, "local edits discarded\n")
	return nil
}

func newFinalizeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "finalize <note-id>",
		Short: "Flush pending edits and finalize a draft",
		Args:  cobra.ExactArgs(1),
		RunE: lifecycleCmd(g, func(ctx context.Context, h *session.Handle, out io.Writer) error {
			n, err := h.Finalize(ctx)
			if err != nil {
				return err
			}
			successf(out, "finalized at %s\n", fmtTime(n.FinalizedAt))
			return nil
		}),
	}
}

func newDeleteCmd(g *globalFlags) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "delete <note-id>",
		Short: "Soft-delete a note; it can be restored during the grace period",
		Args:  cobra.ExactArgs(1),
		RunE: lifecycleCmd(g, func(ctx context.Context, h *session.Handle, out io.Writer) error {
			var rp *string
			if reason != "" {
				rp = &reason
			}
			n, err := h.Delete(ctx, rp)
			if err != nil {
				return err
			}
			successf(out, "deleted; restorable until %s\n", fmtTime(n.PermanentDeleteAfter))
			return nil
		}),
	}
	cmd.Flags().StringVar(&reason, "reason", "", "deletion reason")
	return cmd
}

func newRestoreCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <note-id>",
		Short: "Restore a soft-deleted note",
		Args:  cobra.ExactArgs(1),
		RunE: lifecycleCmd(g, func(ctx context.Context, h *session.Handle, out io.Writer) error {
			n, err := h.Restore(ctx)
			if err != nil {
				return err
			}
			successf(out, "restored as %s\n", n.State())
			return nil
		}),
	}
}

func newPurgeCmd(g *globalFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge <note-id>",
		Short: "Permanently delete a soft-deleted note",
		Args:  cobra.ExactArgs(1),
		RunE: lifecycleCmd(g, func(ctx context.Context, h *session.Handle, out io.Writer) error {
			if !yes {
				return fmt.Errorf("%w: purge is irreversible, pass --yes", errs.ErrValidation)
			}
			if err := h.Purge(ctx); err != nil {
				return err
			}
			successf(out, "purged\n")
			return nil
		}),
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm permanent deletion")
	return cmd
}

// lifecycleCmd opens the note named by args[0] and runs fn on its handle.
func lifecycleCmd(g *globalFlags, fn func(context.Context, *session.Handle, io.Writer) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := openApp(cmd, g)
		if err != nil {
			return err
		}
		defer a.Close()
		return withHandle(cmd.Context(), a.manager, id, cmd.OutOrStdout(), fn)
	}
}

func withHandle(ctx context.Context, m *session.Manager, id uuid.UUID, out io.Writer, fn func(context.Context, *session.Handle, io.Writer) error) error {
	h, err := m.Open(ctx, id)
	if err != nil {
		return err
	}
	defer h.Dispose()
	return fn(ctx, h, out)
}

func newHistoryCmd(g *globalFlags) *cobra.Command {
	var diff bool
	cmd := &cobra.Command{
		Use:   "history <note-id>",
		Short: "List the version history of a finalized note",
		Args:  cobra.ExactArgs(1),
		RunE: lifecycleCmd(g, func(ctx context.Context, h *session.Handle, out io.Writer) error {
			return runHistory(ctx, h, diff, out)
		}),
	}
	cmd.Flags().BoolVar(&diff, "diff", false, "show changes between consecutive versions")
	return cmd
}

func runHistory(ctx context.Context, h *session.Handle, diff bool, out io.Writer) error {
	vs, err := h.Versions(ctx)
	if err != nil {
		return err
	}
	if len(vs) == 0 {
		infof(out, "no versions yet (note is a draft)\n")
		return nil
	}
	for i, v := range vs {
		label := "original"
		if i > 0 {
			label = fmt.Sprintf("before amendment %d", i)
		}
		fmt.Fprintf(out, "%s v%d %s  %s\n", colorBlue.Sprint("•"), v.Version, label, v.CreatedAt.UTC().Format(time.RFC3339))
		if !diff {
			continue
		}
		next := history.Current(h.Note())
		if i+1 < len(vs) {
			next = vs[i+1]
		}
		printDiff(out, history.Diff(v, next))
	}
	return nil
}

// backupLister is the part of the local cache that knows which notes hold unsynced edits.
type backupLister interface {
	Pending(ctx context.Context) ([]uuid.UUID, error)
	Read(ctx context.Context, noteID uuid.UUID) *model.LocalBackup
}

func newPendingCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List notes with local edits that never reached the record store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, g)
			if err != nil {
				return err
			}
			defer a.Close()
			return runPending(cmd.Context(), a.cache, cmd.OutOrStdout())
		},
	}
}

func runPending(ctx context.Context, cache backupLister, out io.Writer) error {
	ids, err := cache.Pending(ctx)
	if err != nil {
		return fmt.Errorf("list local backups: %w", err)
	}
	backups := make([]*model.LocalBackup, 0, len(ids))
	for _, id := range ids {
		if b := cache.Read(ctx, id); b != nil {
			backups = append(backups, b)
		}
	}
	if len(backups) == 0 {
		successf(out, "no unsynced local edits\n")
		return nil
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].Timestamp.After(backups[j].Timestamp) })
	warnf(out, "%d note(s) with unsynced local edits; open them with `chartkeeper edit <note-id>`\n", len(backups))
	for _, b := range backups {
		fmt.Fprintf(out, "%s%s  edited %s\n", indent, b.NoteID, b.Timestamp.UTC().Format(time.RFC3339))
	}
	return nil
}
