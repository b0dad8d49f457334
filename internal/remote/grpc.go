package remote

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"github.com/gofrs/uuid/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/chartkeeper/internal/convert"
	"github.com/and161185/chartkeeper/internal/errs"
	"github.com/and161185/chartkeeper/internal/model"
	"github.com/and161185/chartkeeper/internal/rpc"
)

// GRPCClient talks to the Notes gRPC service.
type GRPCClient struct {
	notes *rpc.NotesClient
}

var _ Client = (*GRPCClient)(nil)

// NewGRPCClient wraps an established connection.
func NewGRPCClient(cc grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{notes: rpc.NewNotesClient(cc)}
}

// DialOptions configures Dial.
type DialOptions struct {
	CAPath    string
	SkipTLS   bool // plaintext, for local development only
	Insecure  bool // TLS without certificate verification
	Token     string
	ExtraOpts []grpc.DialOption
}

type bearerCreds struct {
	token  string
	secure bool
}

func (b bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}
func (b bearerCreds) RequireTransportSecurity() bool { return b.secure }

func transportCreds(o DialOptions) (credentials.TransportCredentials, error) {
	switch {
	case o.SkipTLS:
		return insecure.NewCredentials(), nil
	case o.Insecure:
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil
	case o.CAPath == "":
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(o.CAPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

// Dial creates a client connection with bearer credentials attached to every call.
func Dial(addr string, o DialOptions) (*grpc.ClientConn, error) {
	creds, err := transportCreds(o)
	if err != nil {
		return nil, fmt.Errorf("transport credentials: %w", err)
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if o.Token != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerCreds{token: o.Token, secure: !o.SkipTLS}))
	}
	opts = append(opts, o.ExtraOpts...)
	return grpc.NewClient(addr, opts...)
}

func noteOrErr(s *structpb.Struct, err error) (model.Note, error) {
	if err != nil {
		return model.Note{}, rpc.FromStatus(err)
	}
	n, err := convert.FromStructNote(s)
	if err != nil {
		return model.Note{}, fmt.Errorf("%w: decode note: %v", errs.ErrTransient, err)
	}
	return n, nil
}

func (c *GRPCClient) GetNote(ctx context.Context, id uuid.UUID) (model.Note, error) {
	return noteOrErr(c.notes.GetNote(ctx, convert.ToStructID(id)))
}

func (c *GRPCClient) CreateNote(ctx context.Context, in model.NewNote) (model.Note, error) {
	return noteOrErr(c.notes.CreateNote(ctx, convert.ToStructNewNote(in)))
}

func (c *GRPCClient) PatchDraft(ctx context.Context, id uuid.UUID, p model.Patch) (model.Note, error) {
	return noteOrErr(c.notes.PatchDraft(ctx, convert.ToStructPatch(id, p)))
}

func (c *GRPCClient) Amend(ctx context.Context, id uuid.UUID, p model.Patch) (model.Note, error) {
	return noteOrErr(c.notes.Amend(ctx, convert.ToStructPatch(id, p)))
}

func (c *GRPCClient) Finalize(ctx context.Context, id uuid.UUID) (model.Note, error) {
	return noteOrErr(c.notes.Finalize(ctx, convert.ToStructID(id)))
}

func (c *GRPCClient) Delete(ctx context.Context, id uuid.UUID, reason *string) (model.Note, error) {
	return noteOrErr(c.notes.Delete(ctx, convert.ToStructDelete(id, reason)))
}

func (c *GRPCClient) Restore(ctx context.Context, id uuid.UUID) (model.Note, error) {
	return noteOrErr(c.notes.Restore(ctx, convert.ToStructID(id)))
}

func (c *GRPCClient) Purge(ctx context.Context, id uuid.UUID) error {
	_, err := c.notes.Purge(ctx, convert.ToStructID(id))
	return rpc.FromStatus(err)
}

func (c *GRPCClient) Versions(ctx context.Context, id uuid.UUID) ([]model.VersionSnapshot, error) {
	s, err := c.notes.ListVersions(ctx, convert.ToStructID(id))
	if err != nil {
		return nil, rpc.FromStatus(err)
	}
	vs, err := convert.FromStructVersions(s)
	if err != nil {
		return nil, fmt.Errorf("%w: decode versions: %v", errs.ErrTransient, err)
	}
	return vs, nil
}
