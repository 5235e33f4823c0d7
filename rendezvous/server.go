// Package rendezvous implements the membership bootstrap service.
//
// A process that starts joins the rendezvous server with its ID and address, and receives the
// processes that joined before it. The joining process then connects to each of them.
// The server does not monitor the processes; a process that crashes stays in the list
// until it leaves, and joining processes skip the ones they cannot reach.
package rendezvous

import (
	"cmp"
	"context"
	"net"
	"slices"
	"sync"

	"github.com/relab/flooding"
	"github.com/relab/flooding/core/logging"
	"github.com/relab/flooding/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Server is the rendezvous server.
type Server struct {
	logger     logging.Logger
	grpcServer *grpc.Server

	mut     sync.Mutex
	members map[flooding.ID]flooding.PeerInfo
}

// NewServer returns a new rendezvous server.
func NewServer(logger logging.Logger, opts ...grpc.ServerOption) *Server {
	srv := &Server{
		logger:  logger,
		members: make(map[flooding.ID]flooding.PeerInfo),
	}
	opts = append(opts, grpc.ForceServerCodec(wire.Codec{}))
	srv.grpcServer = grpc.NewServer(opts...)
	srv.grpcServer.RegisterService(&serviceDesc, srv)
	return srv
}

// Serve accepts connections on lis. It blocks until Stop is called or lis fails.
func (srv *Server) Serve(lis net.Listener) error {
	srv.logger.Infof("Rendezvous listening on %s", lis.Addr())
	return srv.grpcServer.Serve(lis)
}

// Stop stops the server and closes all connections.
func (srv *Server) Stop() {
	srv.grpcServer.Stop()
}

// Join registers the process and returns the other members, ordered by ID.
// A process may join again with the same address; joining with an ID already used by another address fails.
func (srv *Server) Join(_ context.Context, req *flooding.JoinMsg) (*flooding.PeerListMsg, error) {
	if req.Addr == "" {
		return nil, status.Error(codes.InvalidArgument, "address is required")
	}

	srv.mut.Lock()
	defer srv.mut.Unlock()

	if member, ok := srv.members[req.ID]; ok && member.Addr != req.Addr {
		return nil, status.Errorf(codes.AlreadyExists, "process %d has already joined from %s", req.ID, member.Addr)
	}
	peers := srv.others(req.ID)
	srv.members[req.ID] = flooding.PeerInfo{ID: req.ID, Addr: req.Addr}
	srv.logger.Infof("Process %d joined from %s (%d other members)", req.ID, req.Addr, len(peers))
	return &flooding.PeerListMsg{Peers: peers}, nil
}

// Leave removes the process and returns the remaining members.
func (srv *Server) Leave(_ context.Context, req *flooding.JoinMsg) (*flooding.PeerListMsg, error) {
	srv.mut.Lock()
	defer srv.mut.Unlock()

	if _, ok := srv.members[req.ID]; !ok {
		return nil, status.Errorf(codes.NotFound, "process %d is not a member", req.ID)
	}
	delete(srv.members, req.ID)
	srv.logger.Infof("Process %d left", req.ID)
	return &flooding.PeerListMsg{Peers: srv.others(req.ID)}, nil
}

// Members returns the registered processes, ordered by ID.
func (srv *Server) Members() []flooding.PeerInfo {
	srv.mut.Lock()
	defer srv.mut.Unlock()
	return srv.filter(func(flooding.PeerInfo) bool { return true })
}

// others returns the members except id. Must be called with mut held.
func (srv *Server) others(id flooding.ID) []flooding.PeerInfo {
	return srv.filter(func(member flooding.PeerInfo) bool { return member.ID != id })
}

func (srv *Server) filter(keep func(flooding.PeerInfo) bool) []flooding.PeerInfo {
	peers := make([]flooding.PeerInfo, 0, len(srv.members))
	for _, member := range srv.members {
		if keep(member) {
			peers = append(peers, member)
		}
	}
	slices.SortFunc(peers, func(a, b flooding.PeerInfo) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return peers
}

var _ rendezvousServer = (*Server)(nil)
