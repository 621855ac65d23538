package ingest

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"cockpit/fusion/internal/types"
)

type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a plaintext client. Extra options are appended, so tests can
// swap in a bufconn dialer.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

// FrameStream is one open ingest stream. Send and Recv may be used from
// different goroutines, but neither concurrently with itself.
type FrameStream struct {
	cs grpc.ClientStream
}

// Open starts a stream. token may be empty when the server runs without auth.
func (c *Client) Open(ctx context.Context, deviceID, token string) (*FrameStream, error) {
	kv := []string{DeviceHeader, deviceID}
	if token != "" {
		kv = append(kv, "authorization", "Bearer "+token)
	}
	ctx = metadata.AppendToOutgoingContext(ctx, kv...)
	cs, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], StreamMethod)
	if err != nil {
		return nil, err
	}
	return &FrameStream{cs: cs}, nil
}

func (s *FrameStream) Send(seq int64, f types.Frame) error {
	msg, err := EncodeFrame(seq, f)
	if err != nil {
		return err
	}
	return s.cs.SendMsg(msg)
}

// SendRaw sends an already encoded message.
func (s *FrameStream) SendRaw(msg *structpb.Struct) error { return s.cs.SendMsg(msg) }

func (s *FrameStream) Recv() (Ack, error) {
	in := new(structpb.Struct)
	if err := s.cs.RecvMsg(in); err != nil {
		return Ack{}, err
	}
	return decodeAck(in), nil
}

func (s *FrameStream) CloseSend() error { return s.cs.CloseSend() }
