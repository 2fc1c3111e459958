package task

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Wire form of tasks and results: whitespace-separated decimal tokens.
// A single task frame is "<id> <ray floats...>". A SuperTask frame carries a
// leading marker so the receiver can tell the two apart:
// "SUPER <id> <m> <tid_1> <cnt_1> ... <tid_m> <cnt_m> <ray floats...>".
// A result frame is "<task_id> <n> <tid...> <dist...>"; a SuperTask response
// is "SUPER <id> <m>" followed by the m member results concatenated in
// member order.

const superMarker = "SUPER"

// IsSuper reports whether a task or result frame carries a SuperTask.
func IsSuper(payload []byte) bool {
	return strings.HasPrefix(string(payload), superMarker+" ")
}

func appendFloats(b []byte, vals []float64) []byte {
	for _, v := range vals {
		b = append(b, ' ')
		b = strconv.AppendFloat(b, v, 'g', -1, 64)
	}
	return b
}

// EncodeTask renders a single task frame.
func EncodeTask(t *Task) []byte {
	b := make([]byte, 0, 24+20*len(t.Rays))
	b = strconv.AppendUint(b, t.ID, 10)
	return appendFloats(b, t.Rays)
}

// DecodeTask parses a single task frame.
func DecodeTask(payload []byte) (*Task, error) {
	fields := strings.Fields(string(payload))
	if len(fields) < 1 {
		return nil, errors.New("empty task frame")
	}
	id, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "parsing task id")
	}
	rays, err := parseFloats(fields[1:])
	if err != nil {
		return nil, errors.Wrapf(err, "parsing rays of task %d", id)
	}
	if len(rays)%RayStride != 0 {
		return nil, errors.Errorf("task %d carries %d ray floats, not a multiple of %d", id, len(rays), RayStride)
	}
	return &Task{ID: id, Rays: rays}, nil
}

// EncodeSuperTask renders a SuperTask frame.
func EncodeSuperTask(s *SuperTask) []byte {
	b := make([]byte, 0, 64+24*len(s.Members)+20*len(s.Rays))
	b = append(b, superMarker...)
	b = append(b, ' ')
	b = strconv.AppendUint(b, s.ID, 10)
	b = append(b, ' ')
	b = strconv.AppendInt(b, int64(len(s.Members)), 10)
	for _, m := range s.Members {
		b = append(b, ' ')
		b = strconv.AppendUint(b, m.TaskID, 10)
		b = append(b, ' ')
		b = strconv.AppendInt(b, int64(m.RayCount), 10)
	}
	return appendFloats(b, s.Rays)
}

// DecodeSuperTask parses a SuperTask frame.
func DecodeSuperTask(payload []byte) (*SuperTask, error) {
	fields := strings.Fields(string(payload))
	if len(fields) < 3 || fields[0] != superMarker {
		return nil, errors.New("malformed supertask frame")
	}
	id, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "parsing supertask id")
	}
	m, err := strconv.Atoi(fields[2])
	if err != nil {
		return nil, errors.Wrap(err, "parsing supertask member count")
	}
	if m < 0 {
		return nil, errors.Errorf("supertask %d declares negative member count %d", id, m)
	}
	if len(fields) < 3+2*m {
		return nil, errors.Errorf("supertask %d truncated: %d members declared", id, m)
	}

	s := &SuperTask{ID: id, Members: make([]Member, 0, m)}
	total := 0
	for i := 0; i < m; i++ {
		tid, err := strconv.ParseUint(fields[3+2*i], 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "parsing member task id")
		}
		cnt, err := strconv.Atoi(fields[4+2*i])
		if err != nil {
			return nil, errors.Wrap(err, "parsing member ray count")
		}
		if cnt < 0 {
			return nil, errors.Errorf("member %d of supertask %d declares negative ray count %d", tid, id, cnt)
		}
		s.Members = append(s.Members, Member{TaskID: tid, RayCount: cnt})
		total += cnt
	}

	s.Rays, err = parseFloats(fields[3+2*m:])
	if err != nil {
		return nil, errors.Wrapf(err, "parsing rays of supertask %d", id)
	}
	if total*RayStride != len(s.Rays) {
		return nil, errors.Errorf("supertask %d declares %d rays but carries %d floats", id, total, len(s.Rays))
	}
	return s, nil
}

// EncodeResult renders one result frame.
func EncodeResult(r *Result) []byte {
	b := make([]byte, 0, 32+12*len(r.TriangleIDs)+20*len(r.Distances))
	return appendResult(b, r)
}

func appendResult(b []byte, r *Result) []byte {
	b = strconv.AppendUint(b, r.TaskID, 10)
	b = append(b, ' ')
	b = strconv.AppendInt(b, int64(len(r.TriangleIDs)), 10)
	for _, id := range r.TriangleIDs {
		b = append(b, ' ')
		b = strconv.AppendInt(b, int64(id), 10)
	}
	return appendFloats(b, r.Distances)
}

// DecodeResult parses one result frame.
func DecodeResult(payload []byte) (*Result, error) {
	fields := strings.Fields(string(payload))
	r, rest, err := decodeResultFields(fields)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, errors.Errorf("result %d carries %d trailing tokens", r.TaskID, len(rest))
	}
	return r, nil
}

func decodeResultFields(fields []string) (*Result, []string, error) {
	if len(fields) < 2 {
		return nil, nil, errors.New("short result frame")
	}
	id, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return nil, nil, errors.Wrap(err, "parsing result task id")
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, nil, errors.Wrap(err, "parsing result ray count")
	}
	if n < 0 {
		return nil, nil, errors.Errorf("result %d declares negative ray count %d", id, n)
	}
	if len(fields) < 2+2*n {
		return nil, nil, errors.Errorf("result %d truncated: %d rays declared", id, n)
	}

	r := &Result{
		TaskID:      id,
		TriangleIDs: make([]int32, n),
		Distances:   make([]float64, n),
	}
	for i := 0; i < n; i++ {
		tid, err := strconv.ParseInt(fields[2+i], 10, 32)
		if err != nil {
			return nil, nil, errors.Wrap(err, "parsing hit triangle id")
		}
		r.TriangleIDs[i] = int32(tid)
	}
	for i := 0; i < n; i++ {
		d, err := strconv.ParseFloat(fields[2+n+i], 64)
		if err != nil {
			return nil, nil, errors.Wrap(err, "parsing hit distance")
		}
		r.Distances[i] = d
	}
	return r, fields[2+2*n:], nil
}

// EncodeSuperResult renders the single response frame for a SuperTask. The
// members slice must match the request's member order.
func EncodeSuperResult(id uint64, members []*Result) []byte {
	b := make([]byte, 0, 64)
	b = append(b, superMarker...)
	b = append(b, ' ')
	b = strconv.AppendUint(b, id, 10)
	b = append(b, ' ')
	b = strconv.AppendInt(b, int64(len(members)), 10)
	for _, r := range members {
		b = append(b, ' ')
		b = appendResult(b, r)
	}
	return b
}

// DecodeSuperResult parses a SuperTask response into per-member results,
// preserving member order.
func DecodeSuperResult(payload []byte) (uint64, []*Result, error) {
	fields := strings.Fields(string(payload))
	if len(fields) < 3 || fields[0] != superMarker {
		return 0, nil, errors.New("malformed supertask response")
	}
	id, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0, nil, errors.Wrap(err, "parsing supertask response id")
	}
	m, err := strconv.Atoi(fields[2])
	if err != nil {
		return 0, nil, errors.Wrap(err, "parsing supertask response member count")
	}
	if m < 0 {
		return 0, nil, errors.Errorf("supertask %d response declares negative member count %d", id, m)
	}

	rest := fields[3:]
	results := make([]*Result, 0, m)
	for i := 0; i < m; i++ {
		var r *Result
		r, rest, err = decodeResultFields(rest)
		if err != nil {
			return 0, nil, errors.Wrapf(err, "parsing member %d of supertask %d response", i, id)
		}
		results = append(results, r)
	}
	if len(rest) != 0 {
		return 0, nil, errors.Errorf("supertask %d response carries %d trailing tokens", id, len(rest))
	}
	return id, results, nil
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
