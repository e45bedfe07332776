package param

import "fmt"

// Param is one named parameter. Data is the content, Grad the accumulated
// update direction, History the optimizer state and Snapshot the content
// last agreed with the server by a random-subset sync.
type Param struct {
	ID   int
	Name string

	Data     []float32
	Grad     []float32
	History  []float32
	Snapshot []float32

	LRScale float32
	WDScale float32

	// SplitThreshold overrides the default split size, in floats.
	SplitThreshold int
}

// New allocates a standalone parameter of the given size.
func New(id int, name string, size int) *Param {
	return &Param{
		ID:       id,
		Name:     name,
		Data:     make([]float32, size),
		Grad:     make([]float32, size),
		History:  make([]float32, size),
		Snapshot: make([]float32, size),
		LRScale:  1,
		WDScale:  1,
	}
}

func (p *Param) Size() int {
	return len(p.Data)
}

// TakeSnapshot records the current content as the last synced state.
func (p *Param) TakeSnapshot() {
	copy(p.Snapshot, p.Data)
}

func (p *Param) String() string {
	return fmt.Sprintf("param[%d]%s(%d)", p.ID, p.Name, len(p.Data))
}

// Net is an ordered list of parameters, the view a model graph gives of itself.
type Net interface {
	Params() []*Param
}

// Shape describes a parameter to allocate.
type Shape struct {
	Name string
	Size int
}
