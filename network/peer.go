package network

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/relab/flooding"
	"github.com/relab/flooding/core/logging"
	"github.com/relab/flooding/internal/protostream"
)

var errProtocol = errors.New("protocol violation")

// peer is an established connection to another process.
// Messages are sent by a dedicated goroutine from an unbounded queue, so that sending never blocks the caller.
type peer struct {
	logger logging.Logger
	info   flooding.PeerInfo
	conn   net.Conn
	writer *protostream.Writer
	reader *protostream.Reader

	mut    sync.Mutex
	cond   *sync.Cond
	queue  []flooding.Message
	closed bool
}

func newPeer(logger logging.Logger, info flooding.PeerInfo, conn net.Conn, reader *protostream.Reader) *peer {
	p := &peer{
		logger: logger,
		info:   info,
		conn:   conn,
		writer: protostream.NewWriter(conn),
		reader: reader,
	}
	p.cond = sync.NewCond(&p.mut)
	return p
}

// send queues msg for sending. Messages queued after the peer was closed are discarded.
func (p *peer) send(msg flooding.Message) {
	p.mut.Lock()
	defer p.mut.Unlock()
	if p.closed {
		return
	}
	p.queue = append(p.queue, msg)
	p.cond.Signal()
}

// next blocks until a message is queued or the peer is closed.
func (p *peer) next() (flooding.Message, bool) {
	p.mut.Lock()
	defer p.mut.Unlock()
	for len(p.queue) == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.closed {
		return nil, false
	}
	msg := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	return msg, true
}

// writeLoop sends queued messages in order until the peer is closed or a write fails.
func (p *peer) writeLoop() error {
	for {
		msg, ok := p.next()
		if !ok {
			return nil
		}
		if err := p.writer.Write(msg); err != nil {
			return err
		}
	}
}

// readLoop delivers the messages received from the peer until the connection fails.
// The sender of each message is set to the peer's ID.
// Frames that cannot be decoded and messages not allowed after the handshake are logged and dropped;
// only a failure of the stream itself ends the loop.
func (p *peer) readLoop(deliver func(msg any)) error {
	for {
		msg, err := p.reader.Read()
		if errors.Is(err, protostream.ErrMalformed) {
			p.logger.Warnf("Dropping message from %v: %v", p.info, err)
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("connection closed by peer")
			}
			return err
		}
		switch m := msg.(type) {
		case flooding.ProposalMsg:
			m.ID = p.info.ID
			deliver(m)
		case flooding.DecisionMsg:
			m.ID = p.info.ID
			deliver(m)
		default:
			p.logger.Warnf("Dropping message from %v: %v: unexpected %v", p.info, errProtocol, msg)
		}
	}
}

// close stops the writer and closes the connection.
func (p *peer) close() error {
	p.mut.Lock()
	p.closed = true
	p.queue = nil
	p.cond.Broadcast()
	p.mut.Unlock()
	return p.conn.Close()
}
