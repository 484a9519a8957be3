package geo

import (
	"github.com/dhconnelly/rtreego"
	"github.com/twpayne/go-geom"

	"github.com/owlmanandy/superfund-counties/internal/dataset"
)

// minExtent keeps point features from producing zero-length rectangles, which
// rtreego rejects.
const minExtent = 1e-9

type feature struct {
	row    int
	parts  parts
	bounds *geom.Bounds
}

// Bounds implements rtreego.Spatial.
func (f *feature) Bounds() rtreego.Rect {
	return rect(f.bounds.Min(0), f.bounds.Min(1), f.bounds.Max(0), f.bounds.Max(1))
}

func rect(minX, minY, maxX, maxY float64) rtreego.Rect {
	w, h := maxX-minX, maxY-minY
	if w < minExtent {
		w = minExtent
	}
	if h < minExtent {
		h = minExtent
	}
	r, _ := rtreego.NewRect(rtreego.Point{minX, minY}, []float64{w, h})
	return r
}

// features decomposes every non-empty geometry of a layer.
func features(l *dataset.Layer) []*feature {
	out := make([]*feature, 0, len(l.Geometries))
	for i, g := range l.Geometries {
		if g == nil {
			continue
		}
		p := decompose(g)
		if p.empty() {
			continue
		}
		b := geom.NewBounds(geom.XY)
		b.Extend(g)
		out = append(out, &feature{row: i, parts: p, bounds: b})
	}
	return out
}

type index struct {
	tree *rtreego.Rtree
	size int
}

func newIndex(fs []*feature) *index {
	tree := rtreego.NewTree(2, 25, 50)
	for _, f := range fs {
		tree.Insert(f)
	}
	return &index{tree: tree, size: len(fs)}
}

// candidates returns the indexed features whose bounding boxes intersect b
// grown by padX and padY.
func (idx *index) candidates(b *geom.Bounds, padX, padY float64) []*feature {
	if idx.size == 0 {
		return nil
	}
	q := rect(b.Min(0)-padX, b.Min(1)-padY, b.Max(0)+padX, b.Max(1)+padY)
	hits := idx.tree.SearchIntersect(q)
	out := make([]*feature, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.(*feature))
	}
	return out
}
