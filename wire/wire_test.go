package wire_test

import (
	"errors"
	"testing"

	"github.com/relab/flooding"
	"github.com/relab/flooding/wire"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  flooding.Message
	}{
		{"Join", flooding.JoinMsg{ID: 7, Addr: "localhost:4000"}},
		{"PeerList", flooding.PeerListMsg{Peers: []flooding.PeerInfo{{ID: 1, Addr: "a:1"}, {ID: 2, Addr: ""}}}},
		{"Proposal", flooding.ProposalMsg{Round: 1 << 40, Values: []flooding.Value{"", "a", "}{", "ü"}}},
		{"Decision", flooding.DecisionMsg{Round: 3, Value: "c"}},
		{"EmptyDecision", flooding.DecisionMsg{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := wire.Marshal(tt.msg)
			require.NoError(t, err)
			got, err := wire.Unmarshal(b)
			require.NoError(t, err)
			require.Equal(t, tt.msg, got)
		})
	}
}

func TestSenderIsNotEncoded(t *testing.T) {
	b, err := wire.Marshal(flooding.DecisionMsg{ID: 5, Round: 1, Value: "x"})
	require.NoError(t, err)
	got, err := wire.Unmarshal(b)
	require.NoError(t, err)
	require.Equal(t, flooding.DecisionMsg{Round: 1, Value: "x"}, got)
}

func TestUnmarshalErrors(t *testing.T) {
	valid, err := wire.Marshal(flooding.DecisionMsg{Round: 1, Value: "x"})
	require.NoError(t, err)

	unknown := protowire.AppendTag(nil, 9, protowire.BytesType)
	unknown = protowire.AppendBytes(unknown, nil)

	varint := protowire.AppendTag(nil, 3, protowire.VarintType)
	varint = protowire.AppendVarint(varint, 1)

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"Empty", nil, wire.ErrEmpty},
		{"UnknownField", unknown, wire.ErrUnknownMessage},
		{"WrongWireType", varint, wire.ErrUnknownMessage},
		{"Truncated", valid[:len(valid)-1], nil},
		{"Trailing", append(valid, 0), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := wire.Unmarshal(tt.data)
			require.Error(t, err)
			if tt.wantErr != nil {
				require.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCodec(t *testing.T) {
	var codec wire.Codec
	require.Equal(t, "flooding", codec.Name())

	b, err := codec.Marshal(&flooding.JoinMsg{ID: 3, Addr: "h:1"})
	require.NoError(t, err)

	var join flooding.JoinMsg
	require.NoError(t, codec.Unmarshal(b, &join))
	require.Equal(t, flooding.JoinMsg{ID: 3, Addr: "h:1"}, join)

	var list flooding.PeerListMsg
	require.Error(t, codec.Unmarshal(b, &list))

	_, err = codec.Marshal("not a message")
	require.Error(t, err)
}
