package ingest

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"cockpit/fusion/internal/auth"
	"cockpit/fusion/internal/engine"
	"cockpit/fusion/internal/types"
)

const (
	ServiceName  = "cockpit.fusion.v1.SignalIngest"
	StreamMethod = "/" + ServiceName + "/Stream"

	// DeviceHeader names the metadata key carrying the signal source id.
	DeviceHeader = "x-device-id"
)

// SignalIngestServer is the service implemented by Server.
type SignalIngestServer interface {
	Stream(grpc.ServerStream) error
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SignalIngestServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    "Stream",
		Handler:       streamHandler,
		ServerStreams: true,
		ClientStreams: true,
	}},
	Metadata: "cockpit/fusion/v1/ingest.proto",
}

func streamHandler(srv any, stream grpc.ServerStream) error {
	return srv.(SignalIngestServer).Stream(stream)
}

// Register adds the ingest service to s.
func Register(s *grpc.Server, srv SignalIngestServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type Snapshotter interface {
	Snapshot() engine.Snapshot
}

// Server forwards frames from signal sources into the engine's frame channel
// and acks each one with the latest published scene and phase.
type Server struct {
	out   chan<- types.Frame
	state Snapshotter
	log   *zap.Logger

	// TokenSecret empty disables stream auth.
	TokenSecret   string
	TokenSkewSecs int
}

func NewServer(out chan<- types.Frame, state Snapshotter, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{out: out, state: state, log: log.Named("ingest")}
}

var _ SignalIngestServer = (*Server)(nil)

func (s *Server) Stream(stream grpc.ServerStream) error {
	ctx := stream.Context()
	device, err := s.authorize(ctx)
	if err != nil {
		metricAuthFailures.Inc()
		return err
	}
	metricStreams.Inc()
	defer metricStreams.Dec()
	s.log.Info("signal source connected", zap.String("device", device))

	for {
		in := new(structpb.Struct)
		if err := stream.RecvMsg(in); err != nil {
			if errors.Is(err, io.EOF) {
				s.log.Info("signal source closed", zap.String("device", device))
				return nil
			}
			return err
		}
		seq, f, err := DecodeFrame(in)
		if err != nil {
			metricMalformed.Inc()
			s.log.Debug("malformed frame", zap.String("device", device), zap.Int64("seq", seq), zap.Error(err))
			if err := s.ack(stream, Ack{Seq: seq, Error: err.Error()}); err != nil {
				return err
			}
			continue
		}
		if f.At.IsZero() {
			f.At = time.Now()
		}
		select {
		case s.out <- f:
		case <-ctx.Done():
			return status.FromContextError(ctx.Err()).Err()
		}
		metricFrames.Inc()

		a := Ack{Seq: seq}
		if s.state != nil {
			snap := s.state.Snapshot()
			a.Scene, a.Phase = string(snap.Scene), string(snap.Phase)
		}
		if err := s.ack(stream, a); err != nil {
			return err
		}
	}
}

func (s *Server) ack(stream grpc.ServerStream, a Ack) error {
	out, err := encodeAck(a)
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	return stream.SendMsg(out)
}

func (s *Server) authorize(ctx context.Context) (string, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	device := first(md, DeviceHeader)
	if s.TokenSecret == "" {
		if device == "" {
			device = "anonymous"
		}
		return device, nil
	}
	if device == "" {
		return "", status.Error(codes.InvalidArgument, "missing "+DeviceHeader)
	}
	token := strings.TrimSpace(strings.TrimPrefix(first(md, "authorization"), "Bearer "))
	if token == "" {
		return "", status.Error(codes.Unauthenticated, auth.ErrTokenMissing.Error())
	}
	if _, _, err := auth.ValidateDeviceToken(s.TokenSecret, token, device, time.Now(), s.TokenSkewSecs); err != nil {
		return "", status.Error(codes.Unauthenticated, err.Error())
	}
	return device, nil
}

func first(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}
