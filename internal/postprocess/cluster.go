package postprocess

// Cluster labels the connected components of the graph with n points and
// the given edges. Labels are assigned in order of each component's first
// member, so the result depends only on the inputs.
func Cluster(n int, edges [][2]int) []int {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	for _, e := range edges {
		a, b := find(e[0]), find(e[1])
		if a == b {
			continue
		}
		// The smaller index stays root.
		if a < b {
			parent[b] = a
		} else {
			parent[a] = b
		}
	}

	labels := make([]int, n)
	rootLabel := make(map[int]int)
	for i := range labels {
		r := find(i)
		l, ok := rootLabel[r]
		if !ok {
			l = len(rootLabel)
			rootLabel[r] = l
		}
		labels[i] = l
	}
	return labels
}

// neighbourOffsets are the forward half of the 8-neighbourhood; scanning
// them from every pixel visits each adjacent pair once.
var neighbourOffsets = [4][2]int{{0, 1}, {1, -1}, {1, 0}, {1, 1}}

// adjacentEdges returns the pairs of detections of one frame that sit on
// 8-neighbouring pixels and satisfy near. dets must come from a single
// frame of a height x width tensor.
func adjacentEdges(dets []detection, height, width int, near func(a, b detection) bool) [][2]int {
	at := make(map[int]int, len(dets))
	for k, d := range dets {
		at[d.Row*width+d.Col] = k
	}
	var edges [][2]int
	for k, d := range dets {
		for _, off := range neighbourOffsets {
			i, j := d.Row+off[0], d.Col+off[1]
			if i < 0 || i >= height || j < 0 || j >= width {
				continue
			}
			m, ok := at[i*width+j]
			if !ok {
				continue
			}
			if near(d, dets[m]) {
				edges = append(edges, [2]int{k, m})
			}
		}
	}
	return edges
}
