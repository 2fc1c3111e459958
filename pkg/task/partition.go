package task

// Partition chops a ray buffer into tasks of at most taskSize rays. IDs are
// assigned in iteration order starting at 0; only the final task may be
// short. The counter is scoped to this call, so every session starts at 0.
func Partition(rays []float64, taskSize int) []*Task {
	if taskSize <= 0 || len(rays) == 0 {
		return nil
	}

	numRays := len(rays) / RayStride
	tasks := make([]*Task, 0, (numRays+taskSize-1)/taskSize)

	stride := taskSize * RayStride
	for off, id := 0, uint64(0); off < len(rays); off, id = off+stride, id+1 {
		end := off + stride
		if end > len(rays) {
			end = len(rays)
		}
		tasks = append(tasks, &Task{ID: id, Rays: rays[off:end]})
	}
	return tasks
}
