// Package replay reads YAML signal scripts: a sequence of frames with
// optional scene and user directives, used to drive the engine offline or
// to feed a running daemon.
package replay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"cockpit/fusion/internal/interaction"
	"cockpit/fusion/internal/types"
)

const DefaultTickMS = 300

var ErrEmptyScript = errors.New("replay script has no steps")

// Step is one script line. A step carrying Scene or User is a directive
// and produces no frame unless it also carries labels.
type Step struct {
	AtMS       *int   `yaml:"at_ms,omitempty"`
	Scene      string `yaml:"scene,omitempty"`
	User       string `yaml:"user,omitempty"`
	Gaze       string `yaml:"gaze,omitempty"`
	HeadPose   string `yaml:"head_pose,omitempty"`
	Gesture    string `yaml:"gesture,omitempty"`
	EyesClosed bool   `yaml:"eyes_closed,omitempty"`
	Voice      string `yaml:"voice,omitempty"`
	Repeat     int    `yaml:"repeat,omitempty"`
}

func (s Step) hasLabels() bool {
	return s.Gaze != "" || s.HeadPose != "" || s.Gesture != "" || s.EyesClosed || s.Voice != ""
}

type Script struct {
	Name   string `yaml:"name,omitempty"`
	TickMS int    `yaml:"tick_ms,omitempty"`
	Steps  []Step `yaml:"steps"`
}

// Item is one expanded script entry: a scene switch, a user switch or a
// frame, in that order of precedence.
type Item struct {
	Scene types.Scene
	User  string
	Frame *types.Frame
}

func Parse(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode replay script: %w", err)
	}
	if len(s.Steps) == 0 {
		return nil, ErrEmptyScript
	}
	if s.TickMS <= 0 {
		s.TickMS = DefaultTickMS
	}
	for i, st := range s.Steps {
		if st.Scene != "" {
			if _, ok := types.ParseScene(st.Scene); !ok {
				return nil, fmt.Errorf("step %d: unknown scene %q", i+1, st.Scene)
			}
		}
		if st.Repeat < 0 {
			return nil, fmt.Errorf("step %d: negative repeat", i+1)
		}
	}
	return &s, nil
}

func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read replay script: %w", err)
	}
	return Parse(data)
}

// Expand flattens the script into items with frame times relative to start.
// Frames without at_ms follow the previous frame by one tick.
func (s *Script) Expand(start time.Time) []Item {
	tick := time.Duration(s.TickMS) * time.Millisecond
	var (
		out  []Item
		next time.Duration
	)
	for _, st := range s.Steps {
		if st.Scene != "" {
			sc, _ := types.ParseScene(st.Scene)
			out = append(out, Item{Scene: sc})
		}
		if st.User != "" {
			out = append(out, Item{User: st.User})
		}
		if !st.hasLabels() && (st.Scene != "" || st.User != "") {
			continue
		}
		if st.AtMS != nil {
			next = time.Duration(*st.AtMS) * time.Millisecond
		}
		n := st.Repeat
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			f := types.Frame{
				At:         start.Add(next),
				Gaze:       types.ParseGaze(st.Gaze),
				HeadPose:   types.ParseHeadPose(st.HeadPose),
				Gesture:    types.ParseGesture(st.Gesture),
				EyesClosed: st.EyesClosed,
			}
			if i == 0 {
				f.Voice = st.Voice
			}
			out = append(out, Item{Frame: &f})
			next += tick
		}
	}
	return out
}

// Driver is satisfied by *engine.Engine.
type Driver interface {
	Step(f types.Frame) []interaction.Record
	Switch(s types.Scene)
	SetUser(id string) error
}

// Run drives d synchronously through the script and returns every record
// produced.
func Run(ctx context.Context, s *Script, start time.Time, d Driver) ([]interaction.Record, error) {
	var recs []interaction.Record
	for _, it := range s.Expand(start) {
		if err := ctx.Err(); err != nil {
			return recs, err
		}
		switch {
		case it.Scene != "":
			d.Switch(it.Scene)
		case it.User != "":
			if err := d.SetUser(it.User); err != nil {
				return recs, err
			}
		case it.Frame != nil:
			recs = append(recs, d.Step(*it.Frame)...)
		}
	}
	return recs, nil
}

// Pace calls send for each item, sleeping between frames so they arrive at
// their scripted offsets. Frames are restamped with the wall clock.
func Pace(ctx context.Context, items []Item, send func(Item) error) error {
	var (
		origin  time.Time
		started = time.Now()
	)
	for _, it := range items {
		if it.Frame != nil {
			if origin.IsZero() {
				origin = it.Frame.At
			}
			wait := it.Frame.At.Sub(origin) - time.Since(started)
			if wait > 0 {
				t := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					t.Stop()
					return ctx.Err()
				case <-t.C:
				}
			}
			f := *it.Frame
			f.At = time.Now()
			it.Frame = &f
		}
		if err := send(it); err != nil {
			return err
		}
	}
	return nil
}
