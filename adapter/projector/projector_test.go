package projector

import (
	"testing"

	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/sboesebeck/morphium-sub001/domain"
)

type D = bson.D
type A = bson.A

type ProjectorTestSuite struct {
	suite.Suite
	proj *Projector
	doc  *domain.Document
}

func (s *ProjectorTestSuite) SetupTest() {
	s.proj = NewProjector()
	s.doc = domain.MustDocument(D{
		{Key: "_id", Value: 1},
		{Key: "name", Value: "ann"},
		{Key: "age", Value: 30},
		{Key: "address", Value: D{{Key: "city", Value: "Rio"}, {Key: "zip", Value: "200"}}},
		{Key: "items", Value: A{
			D{{Key: "sku", Value: "a"}, {Key: "qty", Value: 1}},
			D{{Key: "sku", Value: "b"}, {Key: "qty", Value: 2}},
			"loose",
		}},
	})
}

func (s *ProjectorTestSuite) project(spec any) *domain.Document {
	p, err := s.proj.Parse(spec)
	s.Require().NoError(err)
	res, err := s.proj.Project(s.doc, p)
	s.Require().NoError(err)
	return res
}

func (s *ProjectorTestSuite) Projects(spec any, expected any) {
	s.Equal(domain.MustDocument(expected).String(), s.project(spec).String())
}

// Included fields keep the document order, with the identity first.
func (s *ProjectorTestSuite) TestInclusion() {
	s.Projects(D{{Key: "age", Value: 1}, {Key: "name", Value: true}},
		D{{Key: "_id", Value: 1}, {Key: "name", Value: "ann"}, {Key: "age", Value: 30}})
	s.Projects(D{{Key: "age", Value: 1}, {Key: "_id", Value: 0}},
		D{{Key: "age", Value: 30}})
	s.Projects(D{{Key: "_id", Value: 1}},
		D{{Key: "_id", Value: 1}})
	s.Projects(D{{Key: "missing", Value: 1}},
		D{{Key: "_id", Value: 1}})
}

// Dotted and nested inclusions reach into documents and arrays.
func (s *ProjectorTestSuite) TestNestedInclusion() {
	s.Projects(D{{Key: "address.city", Value: 1}},
		D{{Key: "_id", Value: 1}, {Key: "address", Value: D{{Key: "city", Value: "Rio"}}}})
	s.Projects(D{{Key: "address", Value: D{{Key: "zip", Value: 1}}}},
		D{{Key: "_id", Value: 1}, {Key: "address", Value: D{{Key: "zip", Value: "200"}}}})
	s.Projects(D{{Key: "items.sku", Value: 1}, {Key: "_id", Value: false}},
		D{{Key: "items", Value: A{D{{Key: "sku", Value: "a"}}, D{{Key: "sku", Value: "b"}}}}})
}

// Excluded fields are removed from a copy.
func (s *ProjectorTestSuite) TestExclusion() {
	s.Projects(D{{Key: "items", Value: 0}, {Key: "address", Value: 0}, {Key: "age", Value: 0}},
		D{{Key: "_id", Value: 1}, {Key: "name", Value: "ann"}})
	s.Projects(D{{Key: "_id", Value: 0}, {Key: "items", Value: 0}, {Key: "address.zip", Value: 0}},
		D{{Key: "name", Value: "ann"}, {Key: "age", Value: 30}, {Key: "address", Value: D{{Key: "city", Value: "Rio"}}}})
	s.Projects(D{{Key: "items.qty", Value: 0}, {Key: "address", Value: 0}, {Key: "name", Value: 0}, {Key: "age", Value: 0}},
		D{{Key: "_id", Value: 1}, {Key: "items", Value: A{D{{Key: "sku", Value: "a"}}, D{{Key: "sku", Value: "b"}}, "loose"}}})
	s.Projects(D{{Key: "_id", Value: 0}, {Key: "items", Value: 0}, {Key: "address", Value: 0}},
		D{{Key: "name", Value: "ann"}, {Key: "age", Value: 30}})

	s.Equal(5, s.doc.Len())
	s.Equal(2, s.doc.Get("address").Doc().Len())
}

// Computed fields evaluate expressions against the source document.
func (s *ProjectorTestSuite) TestComputed() {
	s.Projects(D{
		{Key: "name", Value: 1},
		{Key: "next", Value: D{{Key: "$add", Value: A{"$age", 1}}}},
		{Key: "city", Value: "$address.city"},
		{Key: "none", Value: "$nothing"},
		{Key: "label", Value: D{{Key: "$literal", Value: 1}}},
		{Key: "sub.count", Value: D{{Key: "$size", Value: "$items"}}},
	}, D{
		{Key: "_id", Value: 1},
		{Key: "name", Value: "ann"},
		{Key: "next", Value: 31},
		{Key: "city", Value: "Rio"},
		{Key: "label", Value: 1},
		{Key: "sub", Value: D{{Key: "count", Value: 3}}},
	})

	s.Projects(D{{Key: "_id", Value: "$name"}},
		D{{Key: "_id", Value: "ann"}})
}

// Invalid projections are rejected with the offending field.
func (s *ProjectorTestSuite) TestErrors() {
	tests := []struct {
		name  string
		spec  any
		field string
	}{
		{"Mixed", D{{Key: "a", Value: 1}, {Key: "b", Value: 0}}, ""},
		{"MixedComputed", D{{Key: "a", Value: "$x"}, {Key: "b", Value: 0}}, ""},
		{"Collision", D{{Key: "a", Value: 1}, {Key: "a.b", Value: 1}}, "a.b"},
		{"CollisionNested", D{{Key: "a.b", Value: 1}, {Key: "a", Value: 1}}, "a"},
		{"Positional", D{{Key: "items.$", Value: 1}}, "items.$"},
		{"Slice", D{{Key: "items", Value: D{{Key: "$slice", Value: 1}}}}, "items"},
		{"UnknownOperator", D{{Key: "a", Value: D{{Key: "$nope", Value: 1}}}}, ""},
		{"NotADocument", 42, ""},
	}
	for _, tc := range tests {
		s.Run(tc.name, func() {
			_, err := s.proj.Parse(tc.spec)
			s.ErrorIs(err, domain.ErrMalformed)
			var e domain.ErrMalformedExpression
			if tc.field != "" && s.ErrorAs(err, &e) {
				s.Equal(tc.field, e.Field)
			}
		})
	}
}

// Empty projections keep documents unchanged but copied.
func (s *ProjectorTestSuite) TestEmpty() {
	for _, spec := range []any{nil, D{}} {
		p, err := s.proj.Parse(spec)
		s.Require().NoError(err)
		s.True(p.IsEmpty())
		res, err := s.proj.ProjectAll([]*domain.Document{s.doc}, p)
		s.Require().NoError(err)
		s.Equal(s.doc.String(), res[0].String())
		s.NotSame(s.doc, res[0])
	}
}

// Exclude builds the projection of $unset.
func (s *ProjectorTestSuite) TestExclude() {
	p, err := s.proj.Exclude("items", "address.zip", "age", "name")
	s.Require().NoError(err)
	s.False(p.IsInclusive())
	res, err := s.proj.Project(s.doc, p)
	s.Require().NoError(err)
	s.Equal(domain.MustDocument(D{{Key: "_id", Value: 1}, {Key: "address", Value: D{{Key: "city", Value: "Rio"}}}}).String(), res.String())

	_, err = s.proj.Exclude()
	s.ErrorIs(err, domain.ErrMalformed)
}

// The package-level parser and a custom identity field.
func (s *ProjectorTestSuite) TestOptions() {
	p, err := Parse(D{{Key: "name", Value: 1}})
	s.Require().NoError(err)
	s.True(p.IsInclusive())
	s.Equal(`{"name": 1}`, p.Document().String())

	proj := NewProjector(WithIDField("key"))
	p, err = proj.Parse(D{{Key: "age", Value: 1}})
	s.Require().NoError(err)
	doc := domain.MustDocument(D{{Key: "key", Value: "k"}, {Key: "_id", Value: 1}, {Key: "age", Value: 3}})
	res, err := proj.Project(doc, p)
	s.Require().NoError(err)
	s.Equal([]string{"key", "age"}, res.Keys())
}

func TestProjectorTestSuite(t *testing.T) {
	s := new(ProjectorTestSuite)
	suite.Run(t, s)
}
