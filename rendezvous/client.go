package rendezvous

import (
	"context"
	"fmt"

	"github.com/relab/flooding"
	"github.com/relab/flooding/wire"
	"go.uber.org/multierr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is a connection to a rendezvous server.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient returns a client for the rendezvous server at target.
// The connection is established lazily by the first call.
func NewClient(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)
	opts = append(opts, grpc.WithDefaultCallOptions(grpc.ForceCodec(wire.Codec{})))
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("rendezvous: failed to create client: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Join registers self with the server and returns the processes that joined before it.
func (c *Client) Join(ctx context.Context, self flooding.PeerInfo) ([]flooding.PeerInfo, error) {
	var out flooding.PeerListMsg
	err := c.conn.Invoke(ctx, joinMethod, &flooding.JoinMsg{ID: self.ID, Addr: self.Addr}, &out)
	if err != nil {
		return nil, fmt.Errorf("rendezvous: join failed: %w", err)
	}
	return out.Peers, nil
}

// Leave removes self from the server.
func (c *Client) Leave(ctx context.Context, self flooding.PeerInfo) error {
	var out flooding.PeerListMsg
	err := c.conn.Invoke(ctx, leaveMethod, &flooding.JoinMsg{ID: self.ID, Addr: self.Addr}, &out)
	if err != nil {
		return fmt.Errorf("rendezvous: leave failed: %w", err)
	}
	return nil
}

// Close closes the connection to the server.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Join joins the rendezvous server at target once and closes the connection.
func Join(ctx context.Context, target string, self flooding.PeerInfo) (peers []flooding.PeerInfo, err error) {
	c, err := NewClient(target)
	if err != nil {
		return nil, err
	}
	defer func() { err = multierr.Append(err, c.Close()) }()
	return c.Join(ctx, self)
}
