package param

// View locates one parameter inside an Arena.
type View struct {
	Offset int
	Length int
}

func (v View) End() int {
	return v.Offset + v.Length
}

// Arena is a single flat buffer shared by many parameters.
type Arena struct {
	data []float32
}

// NewArena packs the given sizes back to back.
func NewArena(sizes []int) (*Arena, []View) {
	var total int
	views := make([]View, len(sizes))
	for i, n := range sizes {
		views[i] = View{Offset: total, Length: n}
		total += n
	}
	return &Arena{data: make([]float32, total)}, views
}

// Slice returns the part of the arena covered by v. Appending to it never
// overwrites a neighbour.
func (a *Arena) Slice(v View) []float32 {
	return a.data[v.Offset:v.End():v.End()]
}

func (a *Arena) Len() int {
	return len(a.data)
}

// Alloc creates parameters whose four buffers live in four shared arenas.
// Parameter i gets id firstID+i.
func Alloc(firstID int, shapes []Shape) []*Param {
	sizes := make([]int, len(shapes))
	for i, s := range shapes {
		sizes[i] = s.Size
	}
	data, views := NewArena(sizes)
	grad, _ := NewArena(sizes)
	history, _ := NewArena(sizes)
	snapshot, _ := NewArena(sizes)
	ps := make([]*Param, len(shapes))
	for i, s := range shapes {
		v := views[i]
		ps[i] = &Param{
			ID:       firstID + i,
			Name:     s.Name,
			Data:     data.Slice(v),
			Grad:     grad.Slice(v),
			History:  history.Slice(v),
			Snapshot: snapshot.Slice(v),
			LRScale:  1,
			WDScale:  1,
		}
	}
	return ps
}
