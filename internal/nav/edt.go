package nav

import "math"

const edtInf = 1e20

// squaredDistanceField computes, for every cell, the squared Euclidean distance
// in cells to the nearest occupied cell (Felzenszwalb & Huttenlocher). A grid
// without occupied cells yields edtInf everywhere.
func squaredDistanceField(occupied []bool, width, height int) []float64 {
	dist := make([]float64, width*height)
	for i, occ := range occupied {
		if !occ {
			dist[i] = edtInf
		}
	}

	n := max(width, height)
	f := make([]float64, n)
	d := make([]float64, n)
	v := make([]int, n)
	z := make([]float64, n+1)

	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			f[y] = dist[y*width+x]
		}
		distance1D(f[:height], d[:height], v, z)
		for y := 0; y < height; y++ {
			dist[y*width+x] = d[y]
		}
	}
	for y := 0; y < height; y++ {
		row := dist[y*width : (y+1)*width]
		copy(f, row)
		distance1D(f[:width], d[:width], v, z)
		copy(row, d[:width])
	}
	return dist
}

// distance1D is the lower envelope of parabolas rooted at (q, f[q]).
func distance1D(f, d []float64, v []int, z []float64) {
	n := len(f)
	if n == 0 {
		return
	}
	k := 0
	v[0] = 0
	z[0] = math.Inf(-1)
	z[1] = math.Inf(1)
	for q := 1; q < n; q++ {
		s := intersect(f, q, v[k])
		for s <= z[k] {
			k--
			s = intersect(f, q, v[k])
		}
		k++
		v[k] = q
		z[k] = s
		z[k+1] = math.Inf(1)
	}
	k = 0
	for q := 0; q < n; q++ {
		for z[k+1] < float64(q) {
			k++
		}
		dq := float64(q - v[k])
		d[q] = dq*dq + f[v[k]]
	}
}

func intersect(f []float64, q, p int) float64 {
	fq, fp := float64(q), float64(p)
	return ((f[q] + fq*fq) - (f[p] + fp*fp)) / (2*fq - 2*fp)
}
