package scene

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/odvcencio/graphstate/pkg/codec"
	"github.com/odvcencio/graphstate/pkg/object"
)

// Type tags.
const (
	TypeWindow     object.TypeTag = "scene.Window"
	TypeInteractor object.TypeTag = "scene.Interactor"
	TypeRenderer   object.TypeTag = "scene.Renderer"
	TypeActor      object.TypeTag = "scene.Actor"
	TypeMapper     object.TypeTag = "scene.Mapper"
	TypeColorTable object.TypeTag = "scene.ColorTable"
	TypePointSet   object.TypeTag = "scene.PointSet"
)

// RegisterCodecs adds a codec for every scene type to r.
func RegisterCodecs(r *codec.Registry) error {
	return errors.Join(
		codec.Register(r, TypeWindow, windowCodec()),
		codec.Register(r, TypeInteractor, interactorCodec()),
		codec.Register(r, TypeRenderer, rendererCodec()),
		codec.Register(r, TypeActor, actorCodec()),
		codec.Register(r, TypeMapper, mapperCodec()),
		codec.Register(r, TypeColorTable, colorTableCodec()),
		codec.Register(r, TypePointSet, pointSetCodec()),
	)
}

// Registry returns a new registry holding the scene codecs.
func Registry() *codec.Registry {
	r := codec.NewRegistry()
	if err := RegisterCodecs(r); err != nil {
		panic(err)
	}
	return r
}

func windowCodec() codec.Funcs[Window] {
	return codec.Funcs[Window]{
		New: func() *Window { return &Window{} },
		Extract: func(x codec.Extractor, w *Window) (object.Properties, error) {
			iren, err := codec.RefOf(x, w.Interactor)
			if err != nil {
				return nil, err
			}
			rens, err := codec.RefsOf(x, w.Renderers)
			if err != nil {
				return nil, err
			}
			return object.Properties{
				{Name: "title", Value: object.StringValue(w.Title)},
				{Name: "width", Value: object.IntValue(int64(w.Width))},
				{Name: "height", Value: object.IntValue(int64(w.Height))},
				{Name: "interactor", Value: iren},
				{Name: "renderers", Value: rens},
			}, nil
		},
		Construct: func(c codec.Constructor, rec *object.StateRecord, w *Window) (*Window, error) {
			if w == nil {
				w = &Window{}
			}
			title, err := rec.Value("title", object.KindString)
			if err != nil {
				return nil, err
			}
			width, err := rec.Value("width", object.KindInt)
			if err != nil {
				return nil, err
			}
			height, err := rec.Value("height", object.KindInt)
			if err != nil {
				return nil, err
			}
			iren, err := codec.ResolveProperty[Interactor](c, rec, "interactor")
			if err != nil {
				return nil, err
			}
			rens, err := codec.ResolveList[Renderer](c, rec, "renderers")
			if err != nil {
				return nil, err
			}
			w.Title = title.Str
			w.Width = int(width.Int)
			w.Height = int(height.Int)
			w.Interactor = iren
			w.Renderers = rens
			return w, nil
		},
	}
}

func interactorCodec() codec.Funcs[Interactor] {
	return codec.Funcs[Interactor]{
		New: func() *Interactor { return &Interactor{} },
		Extract: func(x codec.Extractor, i *Interactor) (object.Properties, error) {
			win, err := codec.RefOf(x, i.Window)
			if err != nil {
				return nil, err
			}
			return object.Properties{
				{Name: "window", Value: win},
				{Name: "style", Value: object.StringValue(i.Style)},
				{Name: "enabled", Value: object.BoolValue(i.Enabled)},
			}, nil
		},
		Construct: func(c codec.Constructor, rec *object.StateRecord, i *Interactor) (*Interactor, error) {
			if i == nil {
				i = &Interactor{}
			}
			win, err := codec.ResolveProperty[Window](c, rec, "window")
			if err != nil {
				return nil, err
			}
			style, err := rec.Value("style", object.KindString)
			if err != nil {
				return nil, err
			}
			enabled, err := rec.Value("enabled", object.KindBool)
			if err != nil {
				return nil, err
			}
			i.Window = win
			i.Style = style.Str
			i.Enabled = enabled.Bool
			return i, nil
		},
	}
}

func rendererCodec() codec.Funcs[Renderer] {
	return codec.Funcs[Renderer]{
		New: func() *Renderer { return &Renderer{} },
		Extract: func(x codec.Extractor, r *Renderer) (object.Properties, error) {
			actors, err := codec.RefsOf(x, r.Actors)
			if err != nil {
				return nil, err
			}
			return object.Properties{
				{Name: "layer", Value: object.IntValue(int64(r.Layer))},
				{Name: "background", Value: object.FloatsValue(r.Background[:]...)},
				{Name: "actors", Value: actors},
			}, nil
		},
		Construct: func(c codec.Constructor, rec *object.StateRecord, r *Renderer) (*Renderer, error) {
			if r == nil {
				r = &Renderer{}
			}
			layer, err := rec.Value("layer", object.KindInt)
			if err != nil {
				return nil, err
			}
			bg, err := floatArray(rec, "background", 3)
			if err != nil {
				return nil, err
			}
			actors, err := codec.ResolveList[Actor](c, rec, "actors")
			if err != nil {
				return nil, err
			}
			r.Layer = int(layer.Int)
			copy(r.Background[:], bg)
			r.Actors = actors
			return r, nil
		},
	}
}

func actorCodec() codec.Funcs[Actor] {
	return codec.Funcs[Actor]{
		New: func() *Actor { return &Actor{} },
		Extract: func(x codec.Extractor, a *Actor) (object.Properties, error) {
			mapper, err := codec.RefOf(x, a.Mapper)
			if err != nil {
				return nil, err
			}
			return object.Properties{
				{Name: "name", Value: object.StringValue(a.Name)},
				{Name: "visible", Value: object.BoolValue(a.Visible)},
				{Name: "opacity", Value: object.FloatValue(a.Opacity)},
				{Name: "position", Value: object.FloatsValue(a.Position[:]...)},
				{Name: "mapper", Value: mapper},
			}, nil
		},
		Construct: func(c codec.Constructor, rec *object.StateRecord, a *Actor) (*Actor, error) {
			if a == nil {
				a = &Actor{}
			}
			name, err := rec.Value("name", object.KindString)
			if err != nil {
				return nil, err
			}
			visible, err := rec.Value("visible", object.KindBool)
			if err != nil {
				return nil, err
			}
			opacity, err := rec.Value("opacity", object.KindFloat)
			if err != nil {
				return nil, err
			}
			pos, err := floatArray(rec, "position", 3)
			if err != nil {
				return nil, err
			}
			mapper, err := codec.ResolveProperty[Mapper](c, rec, "mapper")
			if err != nil {
				return nil, err
			}
			a.Name = name.Str
			a.Visible = visible.Bool
			a.Opacity = opacity.Float
			copy(a.Position[:], pos)
			a.Mapper = mapper
			return a, nil
		},
	}
}

func mapperCodec() codec.Funcs[Mapper] {
	return codec.Funcs[Mapper]{
		New: func() *Mapper { return &Mapper{} },
		Extract: func(x codec.Extractor, m *Mapper) (object.Properties, error) {
			input, err := codec.RefOf(x, m.Input)
			if err != nil {
				return nil, err
			}
			lut, err := codec.RefOf(x, m.Lookup)
			if err != nil {
				return nil, err
			}
			return object.Properties{
				{Name: "input", Value: input},
				{Name: "lookup", Value: lut},
				{Name: "scalar_range", Value: object.FloatsValue(m.ScalarRange[:]...)},
			}, nil
		},
		Construct: func(c codec.Constructor, rec *object.StateRecord, m *Mapper) (*Mapper, error) {
			if m == nil {
				m = &Mapper{}
			}
			input, err := codec.ResolveProperty[PointSet](c, rec, "input")
			if err != nil {
				return nil, err
			}
			lut, err := codec.ResolveProperty[ColorTable](c, rec, "lookup")
			if err != nil {
				return nil, err
			}
			rng, err := floatArray(rec, "scalar_range", 2)
			if err != nil {
				return nil, err
			}
			m.Input = input
			m.Lookup = lut
			copy(m.ScalarRange[:], rng)
			return m, nil
		},
	}
}

func colorTableCodec() codec.Funcs[ColorTable] {
	return codec.Funcs[ColorTable]{
		New: func() *ColorTable { return &ColorTable{} },
		Extract: func(x codec.Extractor, t *ColorTable) (object.Properties, error) {
			if len(t.RGBA)%4 != 0 {
				return nil, fmt.Errorf("color table %q: %d components is not a multiple of 4", t.Name, len(t.RGBA))
			}
			return object.Properties{
				{Name: "name", Value: object.StringValue(t.Name)},
				{Name: "rgba", Value: object.FloatsValue(t.RGBA...)},
			}, nil
		},
		Construct: func(c codec.Constructor, rec *object.StateRecord, t *ColorTable) (*ColorTable, error) {
			if t == nil {
				t = &ColorTable{}
			}
			name, err := rec.Value("name", object.KindString)
			if err != nil {
				return nil, err
			}
			rgba, err := rec.Value("rgba", object.KindList)
			if err != nil {
				return nil, err
			}
			fs, err := rgba.Floats()
			if err != nil {
				return nil, fmt.Errorf("state %d: rgba: %w", rec.ID, err)
			}
			if len(fs)%4 != 0 {
				return nil, fmt.Errorf("state %d: rgba has %d components", rec.ID, len(fs))
			}
			t.Name = name.Str
			t.RGBA = fs
			return t, nil
		},
	}
}

func pointSetCodec() codec.Funcs[PointSet] {
	return codec.Funcs[PointSet]{
		New: func() *PointSet { return &PointSet{} },
		Extract: func(x codec.Extractor, p *PointSet) (object.Properties, error) {
			if len(p.Points)%3 != 0 {
				return nil, fmt.Errorf("point set: %d coordinates is not a multiple of 3", len(p.Points))
			}
			return object.Properties{
				{Name: "count", Value: object.IntValue(int64(p.NumPoints()))},
				{Name: "points", Value: object.BlobValue(x.PutBlob(EncodeFloat32s(p.Points)))},
			}, nil
		},
		Construct: func(c codec.Constructor, rec *object.StateRecord, p *PointSet) (*PointSet, error) {
			if p == nil {
				p = &PointSet{}
			}
			count, err := rec.Value("count", object.KindInt)
			if err != nil {
				return nil, err
			}
			raw, err := codec.BlobProperty(c, rec, "points")
			if err != nil {
				return nil, err
			}
			pts, err := DecodeFloat32s(raw)
			if err != nil {
				return nil, fmt.Errorf("state %d: points: %w", rec.ID, err)
			}
			if int64(len(pts)) != count.Int*3 {
				return nil, fmt.Errorf("state %d: %d coordinates for %d points", rec.ID, len(pts), count.Int)
			}
			p.Points = pts
			return p, nil
		},
	}
}

func floatArray(rec *object.StateRecord, name string, n int) ([]float64, error) {
	v, err := rec.Value(name, object.KindList)
	if err != nil {
		return nil, err
	}
	fs, err := v.Floats()
	if err != nil {
		return nil, fmt.Errorf("state %d: property %q: %w", rec.ID, name, err)
	}
	if len(fs) != n {
		return nil, fmt.Errorf("state %d: property %q has %d items, want %d", rec.ID, name, len(fs), n)
	}
	return fs, nil
}

// EncodeFloat32s packs fs as little-endian IEEE 754 values.
func EncodeFloat32s(fs []float32) []byte {
	out := make([]byte, 4*len(fs))
	for i, f := range fs {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(f))
	}
	return out
}

// DecodeFloat32s unpacks the encoding produced by EncodeFloat32s.
func DecodeFloat32s(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%d bytes is not a multiple of 4", len(data))
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return out, nil
}
