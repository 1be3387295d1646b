package matcher

import (
	"math"

	"github.com/sboesebeck/morphium-sub001/domain"
)

// earthRadius is the mean radius, in meters, used for GeoJSON distances.
const earthRadius = 6378100.0

type shapeKind uint8

const (
	shapeBox shapeKind = iota
	shapeCenter
	shapeCenterSphere
	shapePolygon
	shapeNear
)

var shapeNames = map[string]shapeKind{
	"$box":          shapeBox,
	"$center":       shapeCenter,
	"$centerSphere": shapeCenterSphere,
	"$polygon":      shapePolygon,
}

type point struct{ x, y float64 }

type geoShape struct {
	kind   shapeKind
	points []point
	radius float64

	// spherical measures great-circle distances, in radians unless
	// meters is set.
	spherical bool
	meters    bool

	maxDistance, minDistance *float64
}

// pointOf reads a legacy coordinate pair ([x, y] or {x: .., y: ..}) or a
// GeoJSON point.
func pointOf(v domain.Value) (point, bool) {
	switch v.Kind() {
	case domain.KindArray:
		arr := v.Array()
		if len(arr) < 2 || !arr[0].IsNumber() || !arr[1].IsNumber() {
			return point{}, false
		}
		return point{arr[0].Float64(), arr[1].Float64()}, true
	case domain.KindDocument:
		d := v.Doc()
		if t := d.Get("type"); t.Kind() == domain.KindString {
			if t.Str() != "Point" {
				return point{}, false
			}
			return pointOf(d.Get("coordinates"))
		}
		fields := d.Fields()
		if len(fields) < 2 || !fields[0].Value.IsNumber() || !fields[1].Value.IsNumber() {
			return point{}, false
		}
		return point{fields[0].Value.Float64(), fields[1].Value.Float64()}, true
	}
	return point{}, false
}

func pointsOf(v domain.Value) ([]point, bool) {
	if !v.IsArray() {
		return nil, false
	}
	res := make([]point, 0, len(v.Array()))
	for _, item := range v.Array() {
		p, ok := pointOf(item)
		if !ok {
			return nil, false
		}
		res = append(res, p)
	}
	return res, true
}

// parseWithin reads the operand of $geoWithin.
func parseWithin(field string, v domain.Value) (geoShape, error) {
	if !v.IsDocument() || v.Doc().Len() != 1 {
		return geoShape{}, malformed("$geoWithin", field, "expected an object with exactly one shape")
	}
	key := v.Doc().Keys()[0]
	arg := v.Doc().Get(key)

	if key == "$geometry" {
		return parseGeometry(field, arg)
	}
	kind, ok := shapeNames[key]
	if !ok {
		return geoShape{}, malformed("$geoWithin", field, "unknown shape %q", key)
	}

	shape := geoShape{kind: kind}
	switch kind {
	case shapeBox:
		pts, ok := pointsOf(arg)
		if !ok || len(pts) != 2 {
			return shape, malformed("$box", field, "expected two corner points")
		}
		shape.points = pts
	case shapePolygon:
		pts, ok := pointsOf(arg)
		if !ok || len(pts) < 3 {
			return shape, malformed("$polygon", field, "expected at least three points")
		}
		shape.points = pts
	case shapeCenter, shapeCenterSphere:
		arr := arg.Array()
		if !arg.IsArray() || len(arr) != 2 || !arr[1].IsNumber() || arr[1].Float64() < 0 {
			return shape, malformed(key, field, "expected [point, radius]")
		}
		p, ok := pointOf(arr[0])
		if !ok {
			return shape, malformed(key, field, "invalid center point")
		}
		shape.points = []point{p}
		shape.radius = arr[1].Float64()
		shape.spherical = kind == shapeCenterSphere
	}
	return shape, nil
}

// parseGeometry reads a GeoJSON polygon used as a $geoWithin shape. Its
// outer ring is tested in the plane of its coordinates.
func parseGeometry(field string, v domain.Value) (geoShape, error) {
	if !v.IsDocument() || v.Doc().Get("type").Str() != "Polygon" {
		return geoShape{}, malformed("$geometry", field, "only Polygon geometries are supported")
	}
	rings := v.Doc().Get("coordinates")
	if !rings.IsArray() || len(rings.Array()) == 0 {
		return geoShape{}, malformed("$geometry", field, "polygon has no rings")
	}
	pts, ok := pointsOf(rings.Array()[0])
	if !ok || len(pts) < 3 {
		return geoShape{}, malformed("$geometry", field, "invalid polygon ring")
	}
	return geoShape{kind: shapePolygon, points: pts}, nil
}

// parseNear reads the operand of $near or $nearSphere along with the
// $maxDistance and $minDistance siblings found in the same operator
// document.
func parseNear(op Operator, field string, arg domain.Value, limits *domain.Document) (geoShape, error) {
	shape := geoShape{kind: shapeNear, spherical: op == NearSphere}

	if arg.IsDocument() && arg.Doc().Has("$geometry") {
		p, ok := pointOf(arg.Doc().Get("$geometry"))
		if !ok {
			return shape, malformed(op.String(), field, "$geometry must be a GeoJSON point")
		}
		shape.points = []point{p}
		shape.spherical, shape.meters = true, true
		limits = mergeLimits(arg.Doc(), limits)
	} else {
		p, ok := pointOf(arg)
		if !ok {
			return shape, malformed(op.String(), field, "expected a point")
		}
		shape.points = []point{p}
	}

	for _, key := range []string{"$maxDistance", "$minDistance"} {
		lv := limits.Get(key)
		if lv.IsMissing() {
			continue
		}
		if !lv.IsNumber() || lv.Float64() < 0 {
			return shape, malformed(key, field, "must be a non-negative number")
		}
		d := lv.Float64()
		if key == "$maxDistance" {
			shape.maxDistance = &d
		} else {
			shape.minDistance = &d
		}
	}
	return shape, nil
}

func mergeLimits(inner, outer *domain.Document) *domain.Document {
	res := domain.NewDocument()
	for _, d := range []*domain.Document{outer, inner} {
		for k, v := range d.Iter() {
			if k == "$maxDistance" || k == "$minDistance" {
				res.Set(k, v)
			}
		}
	}
	return res
}

// contains reports whether p lies inside the shape.
func (s geoShape) contains(p point) bool {
	switch s.kind {
	case shapeBox:
		a, b := s.points[0], s.points[1]
		return p.x >= min(a.x, b.x) && p.x <= max(a.x, b.x) &&
			p.y >= min(a.y, b.y) && p.y <= max(a.y, b.y)
	case shapeCenter, shapeCenterSphere:
		return s.distance(p) <= s.radius
	case shapePolygon:
		return inRing(p, s.points)
	case shapeNear:
		d := s.distance(p)
		if s.maxDistance != nil && d > *s.maxDistance {
			return false
		}
		return s.minDistance == nil || d >= *s.minDistance
	}
	return false
}

// distance measures from the shape's first point to p.
func (s geoShape) distance(p point) float64 {
	o := s.points[0]
	if !s.spherical {
		return math.Hypot(p.x-o.x, p.y-o.y)
	}
	d := haversine(o, p)
	if s.meters {
		return d * earthRadius
	}
	return d
}

// haversine returns the central angle, in radians, between two
// [longitude, latitude] points given in degrees.
func haversine(a, b point) float64 {
	lat1, lat2 := toRadians(a.y), toRadians(b.y)
	dLat := toRadians(b.y - a.y)
	dLng := toRadians(b.x - a.x)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

// inRing is the even-odd ray casting test.
func inRing(p point, ring []point) bool {
	inside := false
	j := len(ring) - 1
	for i := range ring {
		a, b := ring[i], ring[j]
		if (a.y > p.y) != (b.y > p.y) &&
			p.x < (b.x-a.x)*(p.y-a.y)/(b.y-a.y)+a.x {
			inside = !inside
		}
		j = i
	}
	return inside
}
