package core

import "math/rand"

// Rand is the subset of *rand.Rand the engine draws from. Each row owns one.
type Rand interface {
	Intn(n int) int
	Float64() float64
	Shuffle(n int, swap func(i, j int))
}

// NewRowRand derives an independent stream for one row of a seeded run.
func NewRowRand(seed int64, row int) *rand.Rand {
	return rand.New(rand.NewSource(int64(splitmix64(uint64(seed) + uint64(row)*0x9e3779b97f4a7c15))))
}

// NewRowRands returns one stream per row.
func NewRowRands(seed int64, rows int) []Rand {
	out := make([]Rand, rows)
	for i := range out {
		out[i] = NewRowRand(seed, i)
	}
	return out
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
