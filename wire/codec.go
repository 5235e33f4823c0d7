package wire

import (
	"fmt"

	"github.com/relab/flooding"
	"google.golang.org/grpc/encoding"
)

// CodecName is the name under which Codec is registered with gRPC.
const CodecName = "flooding"

func init() {
	encoding.RegisterCodec(Codec{})
}

// Codec is a gRPC codec for flooding messages.
// It accepts messages by value or by pointer.
type Codec struct{}

// Name returns the name of the codec.
func (Codec) Name() string {
	return CodecName
}

// Marshal encodes v, which must be a flooding.Message or a pointer to one.
func (Codec) Marshal(v any) ([]byte, error) {
	// pointers also implement flooding.Message, so they must be matched first
	switch m := v.(type) {
	case *flooding.JoinMsg:
		return Marshal(*m)
	case *flooding.PeerListMsg:
		return Marshal(*m)
	case *flooding.ProposalMsg:
		return Marshal(*m)
	case *flooding.DecisionMsg:
		return Marshal(*m)
	case flooding.Message:
		return Marshal(m)
	}
	return nil, fmt.Errorf("wire: cannot marshal %T", v)
}

// Unmarshal decodes data into v, which must be a pointer to a message of the encoded kind.
func (Codec) Unmarshal(data []byte, v any) error {
	msg, err := Unmarshal(data)
	if err != nil {
		return err
	}
	switch dst := v.(type) {
	case *flooding.JoinMsg:
		return assign(dst, msg)
	case *flooding.PeerListMsg:
		return assign(dst, msg)
	case *flooding.ProposalMsg:
		return assign(dst, msg)
	case *flooding.DecisionMsg:
		return assign(dst, msg)
	}
	return fmt.Errorf("wire: cannot unmarshal into %T", v)
}

func assign[T flooding.Message](dst *T, msg flooding.Message) error {
	m, ok := msg.(T)
	if !ok {
		return fmt.Errorf("wire: cannot unmarshal %T into %T", msg, dst)
	}
	*dst = m
	return nil
}

var _ encoding.Codec = Codec{}
