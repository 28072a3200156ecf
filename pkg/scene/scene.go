// Package scene is a small render-pipeline object model with codecs for the
// manager: a window with its interactor (which points back at the window),
// renderers holding actors, and actors drawing point sets through mappers.
package scene

// Tracked carries the modification counter used to skip extraction of
// unchanged objects.
type Tracked struct {
	version uint64
}

// Modified records a change.
func (t *Tracked) Modified() { t.version++ }

// StateVersion implements codec.Versioned.
func (t *Tracked) StateVersion() uint64 { return t.version }

type Window struct {
	Tracked
	Title      string
	Width      int
	Height     int
	Interactor *Interactor
	Renderers  []*Renderer
}

type Interactor struct {
	Tracked
	Window  *Window
	Style   string
	Enabled bool
}

type Renderer struct {
	Tracked
	Layer      int
	Background [3]float64
	Actors     []*Actor
}

type Actor struct {
	Tracked
	Name     string
	Visible  bool
	Opacity  float64
	Position [3]float64
	Mapper   *Mapper
}

type Mapper struct {
	Tracked
	Input       *PointSet
	Lookup      *ColorTable
	ScalarRange [2]float64
}

type ColorTable struct {
	Tracked
	Name string
	// RGBA holds four components per entry.
	RGBA []float64
}

type PointSet struct {
	Tracked
	// Points holds x, y, z per point.
	Points []float32
}

// NumPoints returns the number of points.
func (p *PointSet) NumPoints() int { return len(p.Points) / 3 }

// NewWindow creates a window wired to a fresh interactor.
func NewWindow(title string, width, height int) *Window {
	w := &Window{Title: title, Width: width, Height: height}
	w.Interactor = &Interactor{Window: w, Style: "trackball", Enabled: true}
	return w
}

// Sample builds a window with one renderer and two actors. The actors have
// separate point sets holding the same coordinates and share one color
// table.
func Sample() *Window {
	w := NewWindow("sample", 640, 480)
	lut := &ColorTable{Name: "viridis", RGBA: []float64{
		0.267, 0.005, 0.329, 1,
		0.128, 0.567, 0.551, 1,
		0.993, 0.906, 0.144, 1,
	}}
	tri := []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}
	left := &Actor{
		Name:    "left",
		Visible: true,
		Opacity: 1,
		Mapper: &Mapper{
			Input:       &PointSet{Points: append([]float32(nil), tri...)},
			Lookup:      lut,
			ScalarRange: [2]float64{0, 1},
		},
	}
	right := &Actor{
		Name:     "right",
		Visible:  true,
		Opacity:  0.5,
		Position: [3]float64{2, 0, 0},
		Mapper: &Mapper{
			Input:       &PointSet{Points: append([]float32(nil), tri...)},
			Lookup:      lut,
			ScalarRange: [2]float64{0, 1},
		},
	}
	w.Renderers = []*Renderer{{
		Background: [3]float64{0.1, 0.2, 0.3},
		Actors:     []*Actor{left, right},
	}}
	return w
}
