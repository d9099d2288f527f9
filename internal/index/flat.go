// Package index holds the exact nearest-neighbour index used by the memory
// store. Vectors are kept row-major in one slice and scanned in full on every
// query; ids are insertion positions.
package index

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

var magic = [4]byte{'F', 'L', '2', '1'}

const headerSize = 4 + 4 + 8

type Neighbor struct {
	ID       int
	Distance float32
}

type FlatL2 struct {
	dim  int
	data []float32
}

func NewFlatL2(dim int) *FlatL2 {
	if dim <= 0 {
		panic(fmt.Sprintf("index: invalid dimension %d", dim))
	}
	return &FlatL2{dim: dim}
}

func (f *FlatL2) Dimension() int {
	return f.dim
}

func (f *FlatL2) Count() int {
	return len(f.data) / f.dim
}

// Insert appends vectors; a vector of the wrong dimension panics, so callers
// validate before handing data over.
func (f *FlatL2) Insert(vectors [][]float32) {
	for i, v := range vectors {
		if len(v) != f.dim {
			panic(fmt.Sprintf("index: vector %d has dimension %d, want %d", i, len(v), f.dim))
		}
	}
	grown := make([]float32, len(f.data), len(f.data)+len(vectors)*f.dim)
	copy(grown, f.data)
	for _, v := range vectors {
		grown = append(grown, v...)
	}
	f.data = grown
}

// Rebuild replaces the whole index. Used after removals because ids are
// positional.
func (f *FlatL2) Rebuild(vectors [][]float32) {
	fresh := &FlatL2{dim: f.dim}
	fresh.Insert(vectors)
	f.data = fresh.data
}

func (f *FlatL2) Reset() {
	f.data = nil
}

func (f *FlatL2) Vector(id int) []float32 {
	if id < 0 || id >= f.Count() {
		return nil
	}
	out := make([]float32, f.dim)
	copy(out, f.data[id*f.dim:(id+1)*f.dim])
	return out
}

// Search returns up to min(k, Count()) neighbours ordered by squared
// Euclidean distance, ties broken by ascending id.
func (f *FlatL2) Search(query []float32, k int) []Neighbor {
	if len(query) != f.dim {
		panic(fmt.Sprintf("index: query has dimension %d, want %d", len(query), f.dim))
	}
	n := f.Count()
	if k <= 0 || n == 0 {
		return []Neighbor{}
	}
	all := make([]Neighbor, n)
	for id := 0; id < n; id++ {
		all[id] = Neighbor{ID: id, Distance: squaredL2(query, f.data[id*f.dim:(id+1)*f.dim])}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Distance != all[j].Distance {
			return all[i].Distance < all[j].Distance
		}
		return all[i].ID < all[j].ID
	})
	if k > n {
		k = n
	}
	return all[:k:k]
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func (f *FlatL2) MarshalBinary() ([]byte, error) {
	buf := make([]byte, headerSize+len(f.data)*4)
	copy(buf[0:4], magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], uint32(f.dim))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(f.Count()))
	off := headerSize
	for _, v := range f.data {
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v))
		off += 4
	}
	return buf, nil
}

func (f *FlatL2) UnmarshalBinary(buf []byte) error {
	if len(buf) < headerSize {
		return fmt.Errorf("index: short buffer (%d bytes)", len(buf))
	}
	if [4]byte(buf[0:4]) != magic {
		return fmt.Errorf("index: bad magic")
	}
	dim := int(binary.LittleEndian.Uint32(buf[4:8]))
	count := binary.LittleEndian.Uint64(buf[8:16])
	if dim <= 0 {
		return fmt.Errorf("index: invalid dimension %d", dim)
	}
	body := buf[headerSize:]
	if uint64(len(body)) != count*uint64(dim)*4 {
		return fmt.Errorf("index: body is %d bytes, want %d", len(body), count*uint64(dim)*4)
	}
	data := make([]float32, 0, int(count)*dim)
	for off := 0; off < len(body); off += 4 {
		data = append(data, math.Float32frombits(binary.LittleEndian.Uint32(body[off:off+4])))
	}
	f.dim = dim
	f.data = data
	return nil
}
