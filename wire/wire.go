// Package wire encodes the messages exchanged by processes in the protobuf wire format.
//
// Every message is encoded as an envelope with exactly one field set, whose number identifies
// the kind of message:
//
//	message Envelope {
//	  oneof msg {
//	    Join join = 1;          // { uint32 id = 1; string addr = 2; }
//	    PeerList peer_list = 2; // { repeated Join peers = 1; }
//	    Proposal proposal = 3;  // { uint64 round = 1; repeated string values = 2; }
//	    Decision decision = 4;  // { uint64 round = 1; string value = 2; }
//	  }
//	}
//
// The sender of a proposal or decision is not encoded; it is known from the connection.
package wire

import (
	"errors"
	"fmt"

	"github.com/relab/flooding"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldJoin     protowire.Number = 1
	fieldPeerList protowire.Number = 2
	fieldProposal protowire.Number = 3
	fieldDecision protowire.Number = 4
)

var (
	// ErrEmpty is returned when decoding an envelope that holds no message.
	ErrEmpty = errors.New("wire: empty message")
	// ErrUnknownMessage is returned when decoding an envelope that holds an unknown kind of message.
	ErrUnknownMessage = errors.New("wire: unknown message")
)

// Marshal encodes msg.
func Marshal(msg flooding.Message) ([]byte, error) {
	return Append(nil, msg)
}

// Append appends the encoding of msg to b.
func Append(b []byte, msg flooding.Message) ([]byte, error) {
	var (
		num  protowire.Number
		body []byte
	)
	switch m := msg.(type) {
	case flooding.JoinMsg:
		num, body = fieldJoin, appendPeer(nil, flooding.PeerInfo{ID: m.ID, Addr: m.Addr})
	case flooding.PeerListMsg:
		num = fieldPeerList
		for _, p := range m.Peers {
			body = protowire.AppendTag(body, 1, protowire.BytesType)
			body = protowire.AppendBytes(body, appendPeer(nil, p))
		}
	case flooding.ProposalMsg:
		num = fieldProposal
		body = protowire.AppendTag(body, 1, protowire.VarintType)
		body = protowire.AppendVarint(body, uint64(m.Round))
		for _, v := range m.Values {
			body = protowire.AppendTag(body, 2, protowire.BytesType)
			body = protowire.AppendString(body, string(v))
		}
	case flooding.DecisionMsg:
		num = fieldDecision
		body = protowire.AppendTag(body, 1, protowire.VarintType)
		body = protowire.AppendVarint(body, uint64(m.Round))
		body = protowire.AppendTag(body, 2, protowire.BytesType)
		body = protowire.AppendString(body, string(m.Value))
	default:
		return nil, fmt.Errorf("wire: cannot marshal %T", msg)
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendBytes(b, body)
	return b, nil
}

func appendPeer(b []byte, p flooding.PeerInfo) []byte {
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.ID))
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	return protowire.AppendString(b, p.Addr)
}

// Unmarshal decodes a message encoded by Marshal.
func Unmarshal(b []byte) (flooding.Message, error) {
	if len(b) == 0 {
		return nil, ErrEmpty
	}
	num, typ, n := protowire.ConsumeTag(b)
	if n < 0 {
		return nil, fmt.Errorf("wire: invalid tag: %w", protowire.ParseError(n))
	}
	if typ != protowire.BytesType {
		return nil, fmt.Errorf("%w: field %d has wire type %d", ErrUnknownMessage, num, typ)
	}
	b = b[n:]
	body, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, fmt.Errorf("wire: invalid message body: %w", protowire.ParseError(n))
	}
	if len(b[n:]) != 0 {
		return nil, fmt.Errorf("wire: %d trailing bytes after message", len(b[n:]))
	}

	switch num {
	case fieldJoin:
		p, err := consumePeer(body)
		if err != nil {
			return nil, err
		}
		return flooding.JoinMsg{ID: p.ID, Addr: p.Addr}, nil
	case fieldPeerList:
		return consumePeerList(body)
	case fieldProposal:
		return consumeProposal(body)
	case fieldDecision:
		return consumeDecision(body)
	default:
		return nil, fmt.Errorf("%w: field %d", ErrUnknownMessage, num)
	}
}

// fields calls fn for every field of b. fn returns the number of bytes it consumed,
// or a negative value if the field could not be parsed.
func fields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) int) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("wire: invalid tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		n = fn(num, typ, b)
		if n < 0 {
			return fmt.Errorf("wire: invalid field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}

func consumePeer(b []byte) (p flooding.PeerInfo, err error) {
	err = fields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			p.ID = flooding.ID(v)
			return n
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			p.Addr = v
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
	return p, err
}

func consumePeerList(b []byte) (msg flooding.PeerListMsg, err error) {
	var peerErr error
	err = fields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num != 1 || typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, b)
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n
		}
		p, err := consumePeer(v)
		if err != nil {
			peerErr = err
			return n
		}
		msg.Peers = append(msg.Peers, p)
		return n
	})
	if err == nil {
		err = peerErr
	}
	return msg, err
}

func consumeProposal(b []byte) (msg flooding.ProposalMsg, err error) {
	err = fields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			msg.Round = flooding.Round(v)
			return n
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n >= 0 {
				msg.Values = append(msg.Values, flooding.Value(v))
			}
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
	return msg, err
}

func consumeDecision(b []byte) (msg flooding.DecisionMsg, err error) {
	err = fields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			msg.Round = flooding.Round(v)
			return n
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			msg.Value = flooding.Value(v)
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
	return msg, err
}
