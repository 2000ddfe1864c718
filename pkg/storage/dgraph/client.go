// Package dgraph implements storage.Upserter against a Dgraph Alpha over gRPC.
package dgraph

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dgraph-io/dgo/v240"
	"github.com/dgraph-io/dgo/v240/protos/api"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/jsonload/jsonload/pkg/storage"
	"github.com/jsonload/jsonload/pkg/telemetry"
)

var tracer = otel.Tracer("jsonload/pkg/storage/dgraph")

// Client implements storage.Upserter by running upsert requests on a Dgraph Alpha.
type Client struct {
	conn   *grpc.ClientConn
	client api.DgraphClient
	dg     *dgo.Dgraph
}

var _ storage.Upserter = (*Client)(nil)

// ClientConfig configures the Dgraph client.
type ClientConfig struct {
	// Addr is the gRPC endpoint of the Alpha, either host:port or an http(s) URL.
	// An https URL enables TLS.
	Addr string

	// TLSConfig overrides the TLS configuration. If nil, TLS is only used for https addresses.
	TLSConfig *tls.Config

	// KeepaliveTime is the duration after which a keepalive ping is sent if no activity.
	// Zero value means keepalive is disabled.
	KeepaliveTime time.Duration

	// KeepaliveTimeout is the duration to wait for a keepalive ping response.
	// Only used when KeepaliveTime > 0.
	KeepaliveTimeout time.Duration

	// Username and Password log into an ACL-enabled cluster when Username is set.
	Username string
	Password string

	// Namespace is the namespace to log into. Only used with Username.
	Namespace uint64
}

// ParseAddr accepts host:port or an http(s) URL and returns the dial target and
// whether the endpoint expects TLS.
func ParseAddr(addr string) (string, bool, error) {
	if !strings.Contains(addr, "://") {
		if addr == "" {
			return "", false, fmt.Errorf("empty dgraph address")
		}
		return addr, false, nil
	}

	u, err := url.Parse(addr)
	if err != nil {
		return "", false, fmt.Errorf("invalid dgraph address %q: %w", addr, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("invalid dgraph address %q: missing host", addr)
	}

	switch u.Scheme {
	case "http":
		return u.Host, false, nil
	case "https":
		return u.Host, true, nil
	default:
		return "", false, fmt.Errorf("invalid dgraph address %q: unsupported scheme %q", addr, u.Scheme)
	}
}

func NewClient(ctx context.Context, config ClientConfig) (*Client, error) {
	target, useTLS, err := ParseAddr(config.Addr)
	if err != nil {
		return nil, err
	}

	grpcOpts := []grpc.DialOption{}

	if config.KeepaliveTime > 0 {
		grpcOpts = append(grpcOpts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    config.KeepaliveTime,
			Timeout: config.KeepaliveTimeout,
		}))
	}

	switch {
	case config.TLSConfig != nil:
		grpcOpts = append(grpcOpts, grpc.WithTransportCredentials(credentials.NewTLS(config.TLSConfig)))
	case useTLS:
		grpcOpts = append(grpcOpts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})))
	default:
		grpcOpts = append(grpcOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(target, grpcOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to dgraph: %w", err)
	}

	client := api.NewDgraphClient(conn)
	c := &Client{
		conn:   conn,
		client: client,
		dg:     dgo.NewDgraphClient(client),
	}

	if config.Username != "" {
		if err := c.dg.LoginIntoNamespace(ctx, config.Username, config.Password, config.Namespace); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to log into dgraph: %w", fromGRPCError(err))
		}
	}

	return c, nil
}

// Ping checks that the Alpha answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.client.CheckVersion(ctx, &api.Check{})
	return fromGRPCError(err)
}

// Upsert runs the request in a fresh transaction committed immediately. The
// transaction is always discarded afterwards so that a failed attempt leaves no
// pending state on the server.
func (c *Client) Upsert(ctx context.Context, query string, mutations []storage.Mutation) error {
	ctx, span := tracer.Start(ctx, "dgraph.Upsert")
	defer span.End()
	span.SetAttributes(attribute.Int("mutations", len(mutations)))

	txn := c.dg.NewTxn()
	defer func() {
		_ = txn.Discard(context.WithoutCancel(ctx))
	}()

	req := &api.Request{
		Query:     query,
		Mutations: toAPIMutations(mutations),
		CommitNow: true,
	}

	if _, err := txn.Do(ctx, req); err != nil {
		err = fromGRPCError(err)
		telemetry.TraceError(span, err)
		return err
	}
	return nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func toAPIMutations(mutations []storage.Mutation) []*api.Mutation {
	out := make([]*api.Mutation, 0, len(mutations))
	for _, m := range mutations {
		out = append(out, &api.Mutation{
			SetJson: m.SetJSON,
			Cond:    m.Cond,
		})
	}
	return out
}
