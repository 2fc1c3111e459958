// Package scene holds the triangle soup a session operates on, the text form
// it crosses the wire in, and the pinhole camera used to generate rays when
// the client ships a camera instead of explicit rays.
package scene

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/darkrenderer/darkrenderer/pkg/task"
)

// TriStride is the number of float64 attributes per triangle: three vertices
// of xyz each.
const TriStride = 9

const camMarker = "CAM"

// Scene is read-only for the duration of a session and shared by reference
// across tracers.
type Scene struct {
	TriangleIDs []int32
	Triangles   []float64

	// Camera is set when the client sent one; nil when it sent explicit rays.
	Camera *Camera

	// Rays holds the client's pre-generated rays; empty when Camera is set.
	Rays []float64
}

// NumRays is the ray count of the session, camera or explicit.
func (s *Scene) NumRays() int {
	if s.Camera != nil {
		return s.Camera.HRes * s.Camera.VRes
	}
	return len(s.Rays) / task.RayStride
}

// ParseEdge decodes the client->edge scene frame:
// "num_tris num_rays" then IDs, vertices, then either "CAM hres vres" + 11
// floats or 6*num_rays ray floats.
func ParseEdge(payload []byte) (*Scene, error) {
	fields := strings.Fields(string(payload))
	if len(fields) < 2 {
		return nil, errors.New("short scene frame")
	}
	numTris, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, errors.Wrap(err, "parsing triangle count")
	}
	numRays, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, errors.Wrap(err, "parsing ray count")
	}
	if numRays < 0 {
		return nil, errors.Errorf("scene declares negative ray count %d", numRays)
	}

	s, rest, err := parseTriangles(fields[2:], numTris)
	if err != nil {
		return nil, err
	}

	if len(rest) > 0 && rest[0] == camMarker {
		s.Camera, err = parseCamera(rest[1:])
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	if len(rest) != numRays*task.RayStride {
		return nil, errors.Errorf("scene declares %d rays but carries %d floats", numRays, len(rest))
	}
	s.Rays, err = parseFloats(rest)
	if err != nil {
		return nil, errors.Wrap(err, "parsing rays")
	}
	return s, nil
}

// ParseCloud decodes the edge->cloud scene frame: "num_tris" then IDs and
// vertices. The cloud never receives a camera or rays.
func ParseCloud(payload []byte) (*Scene, error) {
	fields := strings.Fields(string(payload))
	if len(fields) < 1 {
		return nil, errors.New("short scene frame")
	}
	numTris, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, errors.Wrap(err, "parsing triangle count")
	}
	s, rest, err := parseTriangles(fields[1:], numTris)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, errors.Errorf("scene frame carries %d trailing tokens", len(rest))
	}
	return s, nil
}

func parseTriangles(fields []string, numTris int) (*Scene, []string, error) {
	if numTris < 0 {
		return nil, nil, errors.Errorf("scene declares negative triangle count %d", numTris)
	}
	if len(fields) < numTris*(TriStride+1) {
		return nil, nil, errors.Errorf("scene frame truncated: %d triangles declared", numTris)
	}

	s := &Scene{TriangleIDs: make([]int32, numTris)}
	for i := 0; i < numTris; i++ {
		id, err := strconv.ParseInt(fields[i], 10, 32)
		if err != nil {
			return nil, nil, errors.Wrap(err, "parsing triangle id")
		}
		s.TriangleIDs[i] = int32(id)
	}

	var err error
	s.Triangles, err = parseFloats(fields[numTris : numTris*(TriStride+1)])
	if err != nil {
		return nil, nil, errors.Wrap(err, "parsing triangle vertices")
	}
	return s, fields[numTris*(TriStride+1):], nil
}

// AppendEdge renders the client->edge scene frame.
func AppendEdge(b []byte, s *Scene) []byte {
	b = strconv.AppendInt(b, int64(len(s.TriangleIDs)), 10)
	b = append(b, ' ')
	b = strconv.AppendInt(b, int64(s.NumRays()), 10)
	b = appendTriangles(b, s)
	if s.Camera != nil {
		return s.Camera.append(b)
	}
	return appendFloats(b, s.Rays)
}

// AppendCloud renders the edge->cloud scene frame.
func AppendCloud(b []byte, s *Scene) []byte {
	b = strconv.AppendInt(b, int64(len(s.TriangleIDs)), 10)
	return appendTriangles(b, s)
}

func appendTriangles(b []byte, s *Scene) []byte {
	for _, id := range s.TriangleIDs {
		b = append(b, ' ')
		b = strconv.AppendInt(b, int64(id), 10)
	}
	return appendFloats(b, s.Triangles)
}

func appendFloats(b []byte, vals []float64) []byte {
	for _, v := range vals {
		b = append(b, ' ')
		b = strconv.AppendFloat(b, v, 'g', -1, 64)
	}
	return b
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "token %d", i)
		}
		out[i] = v
	}
	return out, nil
}
