package ingest

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"cockpit/fusion/internal/types"
)

var ErrMalformedFrame = errors.New("malformed frame")

// Ack is the server reply for one received frame. Error is set, and Scene
// and Phase are empty, when the frame was rejected.
type Ack struct {
	Seq   int64
	Scene string
	Phase string
	Error string
}

// EncodeFrame packs a frame for the wire. At is carried as unix millis.
func EncodeFrame(seq int64, f types.Frame) (*structpb.Struct, error) {
	m := map[string]any{
		"seq":         seq,
		"gaze":        string(f.Gaze),
		"head_pose":   string(f.HeadPose),
		"gesture":     string(f.Gesture),
		"eyes_closed": f.EyesClosed,
	}
	if !f.At.IsZero() {
		m["at_ms"] = f.At.UnixMilli()
	}
	if f.Voice != "" {
		m["voice_text"] = f.Voice
	}
	return structpb.NewStruct(m)
}

// DecodeFrame accepts missing label fields and normalizes unknown labels,
// but rejects fields of the wrong kind.
func DecodeFrame(s *structpb.Struct) (int64, types.Frame, error) {
	var f types.Frame
	if s == nil {
		return 0, f, ErrMalformedFrame
	}
	fields := s.GetFields()

	var seq int64
	if v, ok := fields["seq"]; ok {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return 0, f, fmt.Errorf("%w: seq", ErrMalformedFrame)
		}
		seq = int64(n.NumberValue)
	}
	str := func(key string) (string, error) {
		v, ok := fields[key]
		if !ok {
			return "", nil
		}
		sv, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrMalformedFrame, key)
		}
		return sv.StringValue, nil
	}

	gaze, err := str("gaze")
	if err != nil {
		return seq, f, err
	}
	head, err := str("head_pose")
	if err != nil {
		return seq, f, err
	}
	gesture, err := str("gesture")
	if err != nil {
		return seq, f, err
	}
	voice, err := str("voice_text")
	if err != nil {
		return seq, f, err
	}
	if v, ok := fields["eyes_closed"]; ok {
		b, ok := v.GetKind().(*structpb.Value_BoolValue)
		if !ok {
			return seq, f, fmt.Errorf("%w: eyes_closed", ErrMalformedFrame)
		}
		f.EyesClosed = b.BoolValue
	}
	if v, ok := fields["at_ms"]; ok {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return seq, f, fmt.Errorf("%w: at_ms", ErrMalformedFrame)
		}
		f.At = time.UnixMilli(int64(n.NumberValue))
	}
	f.Gaze = types.Gaze(gaze)
	f.HeadPose = types.HeadPose(head)
	f.Gesture = types.Gesture(gesture)
	f.Voice = voice
	return seq, f.Normalize(), nil
}

func encodeAck(a Ack) (*structpb.Struct, error) {
	m := map[string]any{"seq": a.Seq}
	if a.Error != "" {
		m["error"] = a.Error
	} else {
		m["scene"] = a.Scene
		m["phase"] = a.Phase
	}
	return structpb.NewStruct(m)
}

func decodeAck(s *structpb.Struct) Ack {
	fields := s.GetFields()
	return Ack{
		Seq:   int64(fields["seq"].GetNumberValue()),
		Scene: fields["scene"].GetStringValue(),
		Phase: fields["phase"].GetStringValue(),
		Error: fields["error"].GetStringValue(),
	}
}
