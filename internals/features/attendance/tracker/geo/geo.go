// Package geo provides tracker.Geolocator sources for hosts without a device GPS:
// a fixed point, a recorded track, and a source that always refuses permission.
package geo

import (
	"bufio"
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"fieldforce_backend/internals/features/attendance/tracker"
)

var ErrEmptyTrack = errors.New("replay track has no points")

/* ====================== Static ====================== */

type Static struct {
	Latitude  float64
	Longitude float64
	Accuracy  *float64
	Now       func() time.Time
}

func (s *Static) CurrentPosition(ctx context.Context, _ tracker.PositionOptions) (tracker.Position, error) {
	if err := ctx.Err(); err != nil {
		return tracker.Position{}, &tracker.GeoError{Code: tracker.GeoTimeout, Message: err.Error()}
	}
	return tracker.Position{Latitude: s.Latitude, Longitude: s.Longitude, Accuracy: s.Accuracy, Timestamp: now(s.Now)}, nil
}

/* ====================== Denied ====================== */

// Denied behaves like a device where the user refused location access.
type Denied struct{}

func (Denied) CurrentPosition(context.Context, tracker.PositionOptions) (tracker.Position, error) {
	return tracker.Position{}, &tracker.GeoError{Code: tracker.GeoPermissionDenied, Message: "User denied Geolocation"}
}

/* ====================== Replay ====================== */

// TrackPoint is one line of a replay file: {"lat":-6.2,"lng":106.8,"accuracy":12}.
type TrackPoint struct {
	Latitude  float64  `json:"lat"`
	Longitude float64  `json:"lng"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
}

// Replay hands out recorded points in order. After the last point it keeps
// returning that point unless Loop is set.
type Replay struct {
	Points []TrackPoint
	Loop   bool
	Now    func() time.Time

	mu   sync.Mutex
	next int
}

func ReadTrack(r io.Reader) ([]TrackPoint, error) {
	var out []TrackPoint
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		var p TrackPoint
		if err := sonic.UnmarshalString(raw, &p); err != nil {
			return nil, errors.Wrapf(err, "track line %d", line)
		}
		if !(tracker.Position{Latitude: p.Latitude, Longitude: p.Longitude}).Valid() {
			return nil, errors.Errorf("track line %d: coordinates out of range", line)
		}
		out = append(out, p)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrEmptyTrack
	}
	return out, nil
}

func LoadReplay(path string, loop bool) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pts, err := ReadTrack(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return &Replay{Points: pts, Loop: loop}, nil
}

func (r *Replay) CurrentPosition(ctx context.Context, _ tracker.PositionOptions) (tracker.Position, error) {
	if err := ctx.Err(); err != nil {
		return tracker.Position{}, &tracker.GeoError{Code: tracker.GeoTimeout, Message: err.Error()}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Points) == 0 {
		return tracker.Position{}, &tracker.GeoError{Code: tracker.GeoPositionUnavailable, Message: ErrEmptyTrack.Error()}
	}
	i := r.next
	if i >= len(r.Points) {
		if r.Loop {
			i = 0
		} else {
			i = len(r.Points) - 1
		}
	}
	r.next = i + 1
	p := r.Points[i]
	return tracker.Position{Latitude: p.Latitude, Longitude: p.Longitude, Accuracy: p.Accuracy, Timestamp: now(r.Now)}, nil
}

/* ====================== parsing ====================== */

// Parse builds a source from "static:lat,lng[,accuracy]", "replay:path",
// "replay-loop:path" or "denied".
func Parse(source string) (tracker.Geolocator, error) {
	kind, arg, _ := strings.Cut(strings.TrimSpace(source), ":")
	switch strings.ToLower(kind) {
	case "denied":
		return Denied{}, nil
	case "replay", "replay-loop":
		if arg == "" {
			return nil, errors.New("replay source needs a file path")
		}
		return LoadReplay(arg, kind == "replay-loop")
	case "static":
		parts := strings.Split(arg, ",")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, errors.Errorf("static source wants lat,lng[,accuracy], got %q", arg)
		}
		vals := make([]float64, len(parts))
		for i, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, errors.Wrapf(err, "static source value %q", p)
			}
			vals[i] = v
		}
		s := &Static{Latitude: vals[0], Longitude: vals[1]}
		if !(tracker.Position{Latitude: s.Latitude, Longitude: s.Longitude}).Valid() {
			return nil, errors.Errorf("static source %q out of range", arg)
		}
		if len(vals) == 3 {
			s.Accuracy = &vals[2]
		}
		return s, nil
	default:
		return nil, errors.Errorf("unknown location source %q", source)
	}
}

func now(f func() time.Time) time.Time {
	if f == nil {
		return time.Now()
	}
	return f()
}
