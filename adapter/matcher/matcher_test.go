package matcher

import (
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/sboesebeck/morphium-sub001/adapter/collation"
	"github.com/sboesebeck/morphium-sub001/adapter/comparer"
	"github.com/sboesebeck/morphium-sub001/adapter/expression"
	"github.com/sboesebeck/morphium-sub001/domain"
)

type D = bson.D

type A = bson.A

type fieldNavigatorMock struct{ mock.Mock }

// GetAddress implements [domain.FieldNavigator].
func (f *fieldNavigatorMock) GetAddress(field string) ([]string, error) {
	call := f.Called(field)
	return call.Get(0).([]string), call.Error(1)
}

// GetField implements [domain.FieldNavigator].
func (f *fieldNavigatorMock) GetField(doc *domain.Document, addr ...string) ([]domain.Value, bool) {
	call := f.Called(doc, addr)
	return call.Get(0).([]domain.Value), call.Bool(1)
}

// GetValue implements [domain.FieldNavigator].
func (f *fieldNavigatorMock) GetValue(doc *domain.Document, addr ...string) domain.Value {
	return f.Called(doc, addr).Get(0).(domain.Value)
}

// SetField implements [domain.FieldNavigator].
func (f *fieldNavigatorMock) SetField(doc *domain.Document, value domain.Value, addr ...string) error {
	return f.Called(doc, value, addr).Error(0)
}

// UnsetField implements [domain.FieldNavigator].
func (f *fieldNavigatorMock) UnsetField(doc *domain.Document, addr ...string) bool {
	return f.Called(doc, addr).Bool(0)
}

type MatcherTestSuite struct {
	suite.Suite
	mtchr *Matcher
}

func (s *MatcherTestSuite) SetupTest() {
	s.mtchr = NewMatcher()
}

func (s *MatcherTestSuite) SetupSubTest() {
	s.SetupTest()
}

func (s *MatcherTestSuite) match(filter, doc any) bool {
	f, err := s.mtchr.Parse(filter)
	s.Require().NoError(err)
	ok, err := s.mtchr.Match(domain.MustDocument(doc), f)
	s.Require().NoError(err)
	return ok
}

func (s *MatcherTestSuite) Matches(filter, doc any) {
	s.True(s.match(filter, doc), "%v should match %v", filter, doc)
}

func (s *MatcherTestSuite) NotMatches(filter, doc any) {
	s.False(s.match(filter, doc), "%v should not match %v", filter, doc)
}

// Can find documents with simple fields.
func (s *MatcherTestSuite) TestSimpleFieldEquality() {
	s.NotMatches(D{{Key: "test", Value: "yeah"}}, D{{Key: "test", Value: "yea"}})
	s.NotMatches(D{{Key: "test", Value: "yeah"}}, D{{Key: "test", Value: "yeahh"}})
	s.Matches(D{{Key: "test", Value: "yeah"}}, D{{Key: "test", Value: "yeah"}})
	s.Matches(nil, D{{Key: "anything", Value: 1}})
	s.Matches(D{}, D{})
}

// Can find documents with the dot-notation.
func (s *MatcherTestSuite) TestDotNotation() {
	doc := D{{Key: "test", Value: D{{Key: "ooo", Value: "yeah"}}}}
	s.NotMatches(D{{Key: "test.ooo", Value: "yea"}}, doc)
	s.NotMatches(D{{Key: "test.oo", Value: "yeah"}}, doc)
	s.NotMatches(D{{Key: "tst.ooo", Value: "yeah"}}, doc)
	s.Matches(D{{Key: "test.ooo", Value: "yeah"}}, doc)

	arr := D{{Key: "b", Value: A{"node", "embedded", "database"}}}
	s.Matches(D{{Key: "b.1", Value: "embedded"}}, arr)
	s.NotMatches(D{{Key: "b.1", Value: "database"}}, arr)
}

// Nested objects are deep-equality matched and not treated as sub-queries.
func (s *MatcherTestSuite) TestNestedObjectsAreDeepEqual() {
	filter := D{{Key: "a", Value: D{{Key: "b", Value: 5}}}}
	s.Matches(filter, D{{Key: "a", Value: D{{Key: "b", Value: 5}}}})
	s.NotMatches(filter, D{{Key: "a", Value: D{{Key: "b", Value: 5}, {Key: "c", Value: 3}}}})
	s.Matches(D{{Key: "a.b", Value: 5}}, D{{Key: "a", Value: D{{Key: "b", Value: 5}, {Key: "c", Value: 3}}}})
}

// Numbers compare by value, not by representation.
func (s *MatcherTestSuite) TestNumericCoercion() {
	for _, doc := range []D{{{Key: "a", Value: 1}}, {{Key: "a", Value: 1.0}}, {{Key: "a", Value: int64(1)}}} {
		s.Matches(D{{Key: "a", Value: 1}}, doc)
		s.Matches(D{{Key: "a", Value: 1.0}}, doc)
		s.Matches(D{{Key: "a", Value: D{{Key: "$in", Value: A{int64(1)}}}}}, doc)
	}
	s.Matches(D{{Key: "a", Value: D{{Key: "$gt", Value: int64(1)}}}}, D{{Key: "a", Value: 1.5}})
	s.NotMatches(D{{Key: "a", Value: D{{Key: "$lt", Value: 1.0}}}}, D{{Key: "a", Value: int32(1)}})
}

// Missing fields equal null, exist false and fail relational operators.
func (s *MatcherTestSuite) TestMissingFields() {
	doc := D{{Key: "b", Value: 1}}
	s.Matches(D{{Key: "a", Value: nil}}, doc)
	s.Matches(D{{Key: "a", Value: D{{Key: "$exists", Value: false}}}}, doc)
	s.NotMatches(D{{Key: "a", Value: D{{Key: "$exists", Value: true}}}}, doc)
	s.NotMatches(D{{Key: "a", Value: D{{Key: "$gt", Value: 0}}}}, doc)
	s.NotMatches(D{{Key: "a", Value: D{{Key: "$lt", Value: 0}}}}, doc)
	s.Matches(D{{Key: "a", Value: D{{Key: "$ne", Value: 1}}}}, doc)
	s.Matches(D{{Key: "a", Value: D{{Key: "$nin", Value: A{1}}}}}, doc)
	s.Matches(D{{Key: "a.b.c", Value: nil}}, doc)
	s.Matches(D{{Key: "b", Value: D{{Key: "$exists", Value: 1}}}}, doc)

	s.NotMatches(D{{Key: "a", Value: nil}}, D{{Key: "a", Value: 0}})
	s.Matches(D{{Key: "a", Value: nil}}, D{{Key: "a", Value: nil}})
}

// Relational operators never compare across type brackets.
func (s *MatcherTestSuite) TestRelationalBrackets() {
	s.NotMatches(D{{Key: "a", Value: D{{Key: "$gt", Value: 5}}}}, D{{Key: "a", Value: "6"}})
	s.NotMatches(D{{Key: "a", Value: D{{Key: "$lt", Value: "z"}}}}, D{{Key: "a", Value: 1}})
	s.Matches(D{{Key: "a", Value: D{{Key: "$lt", Value: "z"}}}}, D{{Key: "a", Value: "abc"}})
	s.Matches(D{{Key: "a", Value: D{{Key: "$gte", Value: 5}, {Key: "$lte", Value: 5}}}}, D{{Key: "a", Value: 5.0}})
}

// Array fields match when any element does, except for $size and $all.
func (s *MatcherTestSuite) TestArrays() {
	doc := D{{Key: "tags", Value: A{"x", "y"}}}
	s.Matches(D{{Key: "tags", Value: "x"}}, doc)
	s.Matches(D{{Key: "tags", Value: A{"x", "y"}}}, doc)
	s.NotMatches(D{{Key: "tags", Value: A{"y", "x"}}}, doc)
	s.Matches(D{{Key: "tags", Value: D{{Key: "$size", Value: 2}}}}, doc)
	s.NotMatches(D{{Key: "tags", Value: D{{Key: "$size", Value: 1}}}}, doc)
	s.Matches(D{{Key: "tags", Value: D{{Key: "$all", Value: A{"y", "x"}}}}}, doc)
	s.NotMatches(D{{Key: "tags", Value: D{{Key: "$all", Value: A{"x", "z"}}}}}, doc)
	s.NotMatches(D{{Key: "tags", Value: D{{Key: "$all", Value: A{}}}}}, doc)
	s.Matches(D{{Key: "tags", Value: D{{Key: "$type", Value: "array"}}}}, doc)

	items := D{{Key: "items", Value: A{D{{Key: "q", Value: 1}}, D{{Key: "r", Value: 2}}}}}
	s.Matches(D{{Key: "items.q", Value: D{{Key: "$gt", Value: 0}}}}, items)
	s.Matches(D{{Key: "items.q", Value: 1}, {Key: "items.r", Value: 2}}, items)
	s.NotMatches(D{{Key: "items", Value: D{{Key: "$elemMatch", Value: D{{Key: "q", Value: 1}, {Key: "r", Value: 2}}}}}}, items)
	s.Matches(
		D{{Key: "items", Value: D{{Key: "$elemMatch", Value: D{{Key: "q", Value: 1}, {Key: "r", Value: 2}}}}}},
		D{{Key: "items", Value: A{D{{Key: "q", Value: 1}, {Key: "r", Value: 2}}}}},
	)
}

// A scalar $elemMatch requires one element to satisfy every operator.
func (s *MatcherTestSuite) TestScalarElemMatch() {
	bounds := D{{Key: "$gte", Value: 80}, {Key: "$lt", Value: 85}}
	s.Matches(D{{Key: "scores", Value: D{{Key: "$elemMatch", Value: bounds}}}}, D{{Key: "scores", Value: A{82}}})
	s.NotMatches(D{{Key: "scores", Value: D{{Key: "$elemMatch", Value: bounds}}}}, D{{Key: "scores", Value: A{70, 90}}})
	s.Matches(D{{Key: "scores", Value: bounds}}, D{{Key: "scores", Value: A{70, 90}}})
	s.NotMatches(D{{Key: "scores", Value: D{{Key: "$elemMatch", Value: bounds}}}}, D{{Key: "scores", Value: 82}})
}

func (s *MatcherTestSuite) TestInAndNin() {
	filter := D{{Key: "name", Value: D{{Key: "$in", Value: A{bson.Regex{Pattern: "^b"}, "carol"}}}}}
	s.Matches(filter, D{{Key: "name", Value: "bob"}})
	s.Matches(filter, D{{Key: "name", Value: "carol"}})
	s.NotMatches(filter, D{{Key: "name", Value: "dave"}})

	nin := D{{Key: "n", Value: D{{Key: "$nin", Value: A{1, 2}}}}}
	s.Matches(nin, D{{Key: "n", Value: 3}})
	s.NotMatches(nin, D{{Key: "n", Value: A{3, 2}}})
}

// Regular expressions match anywhere unless anchored.
func (s *MatcherTestSuite) TestRegex() {
	s.Matches(D{{Key: "name", Value: bson.Regex{Pattern: "^al", Options: "i"}}}, D{{Key: "name", Value: "Alice"}})
	s.NotMatches(D{{Key: "name", Value: bson.Regex{Pattern: "^al", Options: "i"}}}, D{{Key: "name", Value: "Malice"}})
	s.Matches(D{{Key: "name", Value: D{{Key: "$regex", Value: "lic"}}}}, D{{Key: "name", Value: "Alice"}})
	s.Matches(D{{Key: "name", Value: D{{Key: "$regex", Value: "^A"}, {Key: "$options", Value: "i"}}}}, D{{Key: "name", Value: "alice"}})
	s.Matches(D{{Key: "name", Value: regexp.MustCompile("^al")}}, D{{Key: "name", Value: A{"bob", "alice"}}})
	s.NotMatches(D{{Key: "name", Value: D{{Key: "$regex", Value: "42"}}}}, D{{Key: "name", Value: 42}})
	s.Matches(D{{Key: "name", Value: D{{Key: "$regex", Value: "a l i"}, {Key: "$options", Value: "x"}}}}, D{{Key: "name", Value: "Kali"}})
}

// Compiled expressions are cached by pattern and options.
func (s *MatcherTestSuite) TestRegexCache() {
	for range 3 {
		_, err := s.mtchr.Parse(D{{Key: "a", Value: bson.Regex{Pattern: "^x", Options: "i"}}})
		s.NoError(err)
	}
	s.Equal(1, s.mtchr.regexes.Len())

	_, err := s.mtchr.Parse(D{{Key: "a", Value: bson.Regex{Pattern: "^x"}}})
	s.NoError(err)
	s.Equal(2, s.mtchr.regexes.Len())
}

func (s *MatcherTestSuite) TestTypeAndMod() {
	s.Matches(D{{Key: "a", Value: D{{Key: "$type", Value: "string"}}}}, D{{Key: "a", Value: "x"}})
	s.Matches(D{{Key: "a", Value: D{{Key: "$type", Value: 2}}}}, D{{Key: "a", Value: "x"}})
	s.Matches(D{{Key: "a", Value: D{{Key: "$type", Value: "number"}}}}, D{{Key: "a", Value: 1.5}})
	s.Matches(D{{Key: "a", Value: D{{Key: "$type", Value: A{"long", "int"}}}}}, D{{Key: "a", Value: 3}})
	s.NotMatches(D{{Key: "a", Value: D{{Key: "$type", Value: "null"}}}}, D{})
	s.Matches(D{{Key: "a", Value: D{{Key: "$type", Value: "null"}}}}, D{{Key: "a", Value: nil}})

	mod := D{{Key: "a", Value: D{{Key: "$mod", Value: A{4, 1}}}}}
	s.Matches(mod, D{{Key: "a", Value: 5}})
	s.Matches(mod, D{{Key: "a", Value: 5.5}})
	s.NotMatches(mod, D{{Key: "a", Value: 6}})
	s.NotMatches(mod, D{{Key: "a", Value: "5"}})
}

func (s *MatcherTestSuite) TestLogicalOperators() {
	or := D{{Key: "$or", Value: A{D{{Key: "a", Value: 1}}, D{{Key: "b", Value: 2}}}}}
	s.Matches(or, D{{Key: "a", Value: 1}})
	s.Matches(or, D{{Key: "b", Value: 2}})
	s.NotMatches(or, D{{Key: "a", Value: 2}})

	nor := D{{Key: "$nor", Value: A{D{{Key: "a", Value: 1}}, D{{Key: "b", Value: 2}}}}}
	s.NotMatches(nor, D{{Key: "a", Value: 1}})
	s.Matches(nor, D{{Key: "a", Value: 2}})

	and := D{{Key: "$and", Value: A{D{{Key: "a", Value: D{{Key: "$gt", Value: 1}}}}, D{{Key: "a", Value: D{{Key: "$lt", Value: 5}}}}}}}
	s.Matches(and, D{{Key: "a", Value: 3}})
	s.NotMatches(and, D{{Key: "a", Value: 7}})

	not := D{{Key: "a", Value: D{{Key: "$not", Value: D{{Key: "$gt", Value: 5}}}}}}
	s.Matches(not, D{{Key: "a", Value: 3}})
	s.Matches(not, D{})
	s.NotMatches(not, D{{Key: "a", Value: 7}})
	s.NotMatches(D{{Key: "a", Value: D{{Key: "$not", Value: bson.Regex{Pattern: "^x"}}}}}, D{{Key: "a", Value: "xyz"}})
}

func (s *MatcherTestSuite) TestExpr() {
	filter := D{{Key: "$expr", Value: D{{Key: "$gt", Value: A{"$a", "$b"}}}}}
	s.Matches(filter, D{{Key: "a", Value: 3}, {Key: "b", Value: 2}})
	s.NotMatches(filter, D{{Key: "a", Value: 1}, {Key: "b", Value: 2}})

	f, err := s.mtchr.Parse(D{{Key: "$expr", Value: D{{Key: "$divide", Value: A{"$a", 0}}}}})
	s.Require().NoError(err)
	ok, err := s.mtchr.Match(domain.MustDocument(D{{Key: "a", Value: 1}}), f)
	s.ErrorIs(err, domain.ErrDivideByZero)
	s.False(ok)
}

func (s *MatcherTestSuite) TestGeo() {
	at := func(x, y float64) D { return D{{Key: "loc", Value: A{x, y}}} }

	box := D{{Key: "loc", Value: D{{Key: "$geoWithin", Value: D{{Key: "$box", Value: A{A{0, 0}, A{10, 10}}}}}}}}
	s.Matches(box, at(5, 5))
	s.NotMatches(box, at(11, 5))
	s.NotMatches(box, D{{Key: "loc", Value: "nowhere"}})

	center := D{{Key: "loc", Value: D{{Key: "$geoWithin", Value: D{{Key: "$center", Value: A{A{0, 0}, 5}}}}}}}
	s.Matches(center, at(3, 4))
	s.NotMatches(center, at(4, 4))

	sphere := D{{Key: "loc", Value: D{{Key: "$geoWithin", Value: D{{Key: "$centerSphere", Value: A{A{0, 0}, 0.1}}}}}}}
	s.Matches(sphere, at(5, 0))
	s.NotMatches(sphere, at(10, 0))

	polygon := D{{Key: "loc", Value: D{{Key: "$geoWithin", Value: D{{Key: "$polygon", Value: A{A{0, 0}, A{10, 0}, A{0, 10}}}}}}}}
	s.Matches(polygon, at(2, 2))
	s.NotMatches(polygon, at(8, 8))

	near := D{{Key: "loc", Value: D{{Key: "$near", Value: A{0, 0}}, {Key: "$maxDistance", Value: 2}}}}
	s.Matches(near, at(1, 1))
	s.NotMatches(near, at(2, 2))
	s.Matches(near, D{{Key: "loc", Value: D{{Key: "x", Value: 1}, {Key: "y", Value: 0}}}})
	s.Matches(near, D{{Key: "loc", Value: D{{Key: "type", Value: "Point"}, {Key: "coordinates", Value: A{0, 1}}}}})

	geoJSON := func(max float64) D {
		return D{{Key: "loc", Value: D{{Key: "$nearSphere", Value: D{
			{Key: "$geometry", Value: D{{Key: "type", Value: "Point"}, {Key: "coordinates", Value: A{0, 0}}}},
			{Key: "$maxDistance", Value: max},
		}}}}}
	}
	s.Matches(geoJSON(200000), at(0, 1))
	s.NotMatches(geoJSON(100000), at(0, 1))

	f, err := s.mtchr.Parse(near)
	s.Require().NoError(err)
	d, ok := s.mtchr.Distance(domain.MustDocument(at(3, 4)), f)
	s.True(ok)
	s.InDelta(5.0, d, 1e-9)
	_, ok = s.mtchr.Distance(domain.MustDocument(D{}), f)
	s.False(ok)
}

// Collation changes string equality.
func (s *MatcherTestSuite) TestCollation() {
	filter := D{{Key: "name", Value: "alice"}}
	doc := D{{Key: "name", Value: "ALICE"}}
	s.NotMatches(filter, doc)

	c, err := collation.New(&domain.Collation{Locale: "en", Strength: 2})
	s.Require().NoError(err)
	s.mtchr = s.mtchr.Using(comparer.NewComparer(comparer.WithCollator(c)))
	s.Matches(filter, doc)
	s.NotMatches(D{{Key: "name", Value: "alicia"}}, doc)
}

// Parse errors name the operator and the field.
func (s *MatcherTestSuite) TestParseErrors() {
	tests := []struct {
		filter D
		op     string
		field  string
	}{
		{D{{Key: "a", Value: D{{Key: "$foo", Value: 1}}}}, "$foo", "a"},
		{D{{Key: "a", Value: D{{Key: "$gt", Value: 1}, {Key: "b", Value: 2}}}}, "", "a"},
		{D{{Key: "$or", Value: A{}}}, "$or", ""},
		{D{{Key: "$and", Value: A{1}}}, "$and", ""},
		{D{{Key: "$bogus", Value: A{}}}, "$bogus", ""},
		{D{{Key: "a", Value: D{{Key: "$size", Value: -1}}}}, "$size", "a"},
		{D{{Key: "a", Value: D{{Key: "$size", Value: 1.5}}}}, "$size", "a"},
		{D{{Key: "a", Value: D{{Key: "$mod", Value: A{0, 1}}}}}, "$mod", "a"},
		{D{{Key: "a", Value: D{{Key: "$in", Value: 1}}}}, "$in", "a"},
		{D{{Key: "a", Value: D{{Key: "$regex", Value: "("}}}}, "$regex", "a"},
		{D{{Key: "a", Value: D{{Key: "$options", Value: "i"}}}}, "$options", "a"},
		{D{{Key: "a", Value: D{{Key: "$not", Value: 5}}}}, "$not", "a"},
		{D{{Key: "a", Value: D{{Key: "$type", Value: "nope"}}}}, "$type", "a"},
		{D{{Key: "a", Value: D{{Key: "$maxDistance", Value: 1}}}}, "$maxDistance", "a"},
		{D{{Key: "a", Value: D{{Key: "$geoWithin", Value: D{{Key: "$box", Value: A{A{0, 0}}}}}}}}, "$box", "a"},
	}
	for _, tt := range tests {
		_, err := s.mtchr.Parse(tt.filter)
		s.ErrorIs(err, domain.ErrMalformed, "%v", tt.filter)
		var mErr domain.ErrMalformedExpression
		if s.ErrorAs(err, &mErr) {
			s.Equal(tt.op, mErr.Operator, "%v", tt.filter)
			s.Equal(tt.field, mErr.Field, "%v", tt.filter)
		}
	}

	_, err := s.mtchr.Parse("not a document")
	s.ErrorIs(err, domain.ErrMalformed)
}

// Will return error if GetAddress fails.
func (s *MatcherTestSuite) TestFailedGetAddress() {
	fn := new(fieldNavigatorMock)
	s.mtchr = NewMatcher(WithFieldNavigator(fn))

	errGetAddr := errors.New("bad path")
	fn.On("GetAddress", "a").Return([]string{}, errGetAddr).Once()

	_, err := s.mtchr.Parse(D{{Key: "a", Value: 1}})
	s.ErrorIs(err, errGetAddr)
	fn.AssertExpectations(s.T())
}

// Matching reads fields through the navigator.
func (s *MatcherTestSuite) TestUsesFieldNavigator() {
	fn := new(fieldNavigatorMock)
	s.mtchr = NewMatcher(WithFieldNavigator(fn))
	doc := domain.MustDocument(D{})

	fn.On("GetAddress", "a").Return([]string{"a"}, nil).Once()
	fn.On("GetField", doc, []string{"a"}).Return([]domain.Value{domain.Int32(1)}, false).Once()

	f, err := s.mtchr.Parse(D{{Key: "a", Value: 1}})
	s.Require().NoError(err)
	ok, err := s.mtchr.Match(doc, f)
	s.NoError(err)
	s.True(ok)
	fn.AssertExpectations(s.T())
}

// Serializing and parsing again never changes the outcome.
func (s *MatcherTestSuite) TestRoundTrip() {
	filters := []any{
		D{{Key: "a", Value: 1}},
		D{{Key: "a", Value: D{{Key: "$gt", Value: 1}, {Key: "$lt", Value: 10}}}},
		D{{Key: "a", Value: D{{Key: "b", Value: 1}}}},
		D{{Key: "a", Value: D{{Key: "$eq", Value: D{{Key: "b", Value: 1}}}}}},
		D{{Key: "a", Value: nil}},
		D{{Key: "tags", Value: D{{Key: "$all", Value: A{"x", bson.Regex{Pattern: "^y"}}}}}},
		D{{Key: "tags", Value: D{{Key: "$size", Value: 2}}}},
		D{{Key: "name", Value: bson.Regex{Pattern: "^al", Options: "i"}}},
		D{{Key: "name", Value: D{{Key: "$regex", Value: "li"}, {Key: "$ne", Value: "alice"}}}},
		D{{Key: "a", Value: D{{Key: "$not", Value: D{{Key: "$gt", Value: 5}, {Key: "$lt", Value: 0}}}}}},
		D{{Key: "a", Value: D{{Key: "$not", Value: bson.Regex{Pattern: "x"}}}}},
		D{{Key: "items", Value: D{{Key: "$elemMatch", Value: D{{Key: "q", Value: D{{Key: "$gte", Value: 1}}}}}}}},
		D{{Key: "tags", Value: D{{Key: "$elemMatch", Value: D{{Key: "$in", Value: A{"x", "z"}}}}}}},
		D{{Key: "$or", Value: A{D{{Key: "a", Value: 1}}, D{{Key: "tags", Value: "y"}}}}},
		D{{Key: "$nor", Value: A{D{{Key: "a", Value: 1}}}}, {Key: "$comment", Value: "why"}},
		D{{Key: "$expr", Value: D{{Key: "$gt", Value: A{"$a", 1}}}}},
		D{{Key: "a", Value: D{{Key: "$type", Value: "number"}, {Key: "$mod", Value: A{2, 0}}}}},
		D{{Key: "loc", Value: D{{Key: "$near", Value: A{0, 0}}, {Key: "$maxDistance", Value: 5}}}},
		D{{Key: "loc", Value: D{{Key: "$within", Value: D{{Key: "$box", Value: A{A{0, 0}, A{3, 3}}}}}}}},
		D{{Key: "a", Value: D{{Key: "$exists", Value: false}}}},
		Where("a").Gt(0).And("a").Gt(1),
		Where("a").Eq(2).Or(Where("tags").Eq("x"), Where("a").Lt(0)),
	}
	docs := []D{
		{},
		{{Key: "a", Value: 1}},
		{{Key: "a", Value: 2}, {Key: "tags", Value: A{"x", "y"}}},
		{{Key: "a", Value: D{{Key: "b", Value: 1}}}},
		{{Key: "a", Value: -3}, {Key: "name", Value: "Alice"}},
		{{Key: "name", Value: "alice"}, {Key: "tags", Value: A{"z"}}},
		{{Key: "items", Value: A{D{{Key: "q", Value: 0}}, D{{Key: "q", Value: 2}}}}},
		{{Key: "loc", Value: A{1, 2}}, {Key: "a", Value: 6}},
		{{Key: "a", Value: "xylophone"}},
	}
	for _, filter := range filters {
		f, err := s.mtchr.Parse(filter)
		s.Require().NoError(err, "%v", filter)
		again, err := s.mtchr.ParseDocument(f.Document())
		s.Require().NoError(err, "%s", f)
		for _, d := range docs {
			doc := domain.MustDocument(d)
			want, err := s.mtchr.Match(doc, f)
			s.Require().NoError(err)
			got, err := s.mtchr.Match(doc, again)
			s.Require().NoError(err)
			s.Equal(want, got, "%s on %s", f, doc)
		}
	}
}

// Serialization keeps leaves of one field together when operators differ.
func (s *MatcherTestSuite) TestDocument() {
	f, err := Where("a").Gt(1).And("a").Lt(5).And("b").Eq(2).Filter()
	s.Require().NoError(err)
	s.Equal(
		domain.MustDocument(D{{Key: "a", Value: D{{Key: "$gt", Value: 1}, {Key: "$lt", Value: 5}}}, {Key: "b", Value: 2}}),
		f.Document(),
	)

	f, err = Where("a").Gt(1).And("a").Gt(2).Filter()
	s.Require().NoError(err)
	s.Equal(
		domain.MustDocument(D{{Key: "$and", Value: A{
			D{{Key: "a", Value: D{{Key: "$gt", Value: 1}}}},
			D{{Key: "a", Value: D{{Key: "$gt", Value: 2}}}},
		}}}),
		f.Document(),
	)
}

// Each builder call appends an AND leaf.
func (s *MatcherTestSuite) TestBuilderAnd() {
	doc, err := Where("a").Eq(1).And("b").Gt(2).Document()
	s.NoError(err)
	s.Equal(domain.MustDocument(D{{Key: "a", Value: 1}, {Key: "b", Value: D{{Key: "$gt", Value: 2}}}}), doc)

	doc, err = Where("a").Not().Gt(5).Document()
	s.NoError(err)
	s.Equal(domain.MustDocument(D{{Key: "a", Value: D{{Key: "$not", Value: D{{Key: "$gt", Value: 5}}}}}}), doc)
}

// $or and $nor wrap the existing leaves in an $and only when there are any.
func (s *MatcherTestSuite) TestBuilderOr() {
	doc, err := Where("a").Eq(1).Or(Where("b").Eq(2), Where("c").Eq(3)).Document()
	s.NoError(err)
	s.Equal(domain.MustDocument(D{{Key: "$and", Value: A{
		D{{Key: "a", Value: 1}},
		D{{Key: "$or", Value: A{D{{Key: "b", Value: 2}}, D{{Key: "c", Value: 3}}}}},
	}}}), doc)

	doc, err = Or(Where("b").Eq(2), Where("c").Eq(3)).Document()
	s.NoError(err)
	s.Equal(domain.MustDocument(D{{Key: "$or", Value: A{D{{Key: "b", Value: 2}}, D{{Key: "c", Value: 3}}}}}), doc)

	doc, err = Where("a").Eq(1).And("x").Eq(2).Nor(Where("b").Eq(2)).Document()
	s.NoError(err)
	s.Equal(domain.MustDocument(D{{Key: "$and", Value: A{
		D{{Key: "a", Value: 1}},
		D{{Key: "x", Value: 2}},
		D{{Key: "$nor", Value: A{D{{Key: "b", Value: 2}}}}},
	}}}), doc)

	doc, err = Or(Where("b").Eq(2)).And("c").Eq(3).Document()
	s.NoError(err)
	s.Equal(domain.MustDocument(D{
		{Key: "$or", Value: A{D{{Key: "b", Value: 2}}}},
		{Key: "c", Value: 3},
	}), doc)

	_, err = Where("a").Eq(1).Or().Filter()
	s.ErrorIs(err, domain.ErrMalformed)
}

// Builders never change the query they extend.
func (s *MatcherTestSuite) TestBuilderImmutable() {
	base := Where("a").Eq(1)
	left := base.And("b").Eq(2)
	right := base.Or(Where("c").Eq(3))

	doc, err := base.Document()
	s.NoError(err)
	s.Equal(domain.MustDocument(D{{Key: "a", Value: 1}}), doc)

	doc, err = left.Document()
	s.NoError(err)
	s.Equal(domain.MustDocument(D{{Key: "a", Value: 1}, {Key: "b", Value: 2}}), doc)

	s.True(s.match(right, D{{Key: "a", Value: 1}, {Key: "c", Value: 3}}))
	s.False(s.match(right, D{{Key: "a", Value: 1}, {Key: "b", Value: 2}}))
}

// Builder errors surface when the filter is requested.
func (s *MatcherTestSuite) TestBuilderErrors() {
	_, err := Where("a").Size(-1).And("b").Eq(1).Filter()
	s.ErrorIs(err, domain.ErrMalformed)

	_, err = Where("a").Eq(make(chan int)).Filter()
	s.Error(err)

	_, err = Where("a").Regex("(", "").Document()
	s.ErrorIs(err, domain.ErrMalformed)
}

func (s *MatcherTestSuite) TestBuilderOperators() {
	doc := D{
		{Key: "n", Value: 7},
		{Key: "tags", Value: A{"x", "y"}},
		{Key: "name", Value: "Alice"},
		{Key: "loc", Value: A{1, 1}},
		{Key: "items", Value: A{D{{Key: "q", Value: 3}}}},
	}
	queries := []Query{
		Where("n").Gte(7).And("n").Lte(7).And("n").Ne(8),
		Where("n").In(1, 7).And("n").Nin(2, 3),
		Where("tags").All("y", "x").And("tags").Size(2),
		Where("name").Regex("^ali", "i").And("name").Matches(regexp.MustCompile("ce$")),
		Where("n").Mod(2, 1).And("n").Type("int").And("missing").Exists(false),
		Where("items").ElemMatch(Where("q").Gt(2)),
		Where("loc").Near(0, 0, 2).And("loc").Box(0, 0, 2, 2).And("loc").Center(0, 0, 2),
		Where("loc").CenterSphere(0, 0, 0.1).And("loc").NearSphere(0, 0, 0.1),
		Where("loc").Polygon([2]float64{0, 0}, [2]float64{4, 0}, [2]float64{0, 4}),
		Expr(expression.Gt(expression.Field("n"), expression.Literal(5))),
	}
	for _, q := range queries {
		s.True(s.match(q, doc), "%v", q.filter)
	}
	s.False(s.match(Where("n").Lt(7), doc))
}

func (s *MatcherTestSuite) TestConditions() {
	f, err := s.mtchr.Parse(D{
		{Key: "a", Value: 1},
		{Key: "b", Value: D{{Key: "$gt", Value: 2}}},
		{Key: "$and", Value: A{D{{Key: "c", Value: 3}}}},
		{Key: "$or", Value: A{D{{Key: "d", Value: 4}}}},
	})
	s.Require().NoError(err)

	s.Equal([]Condition{
		{Field: "a", Op: Eq, Operand: domain.Int32(1)},
		{Field: "b", Op: Gt, Operand: domain.Int32(2)},
		{Field: "c", Op: Eq, Operand: domain.Int32(3)},
	}, f.Conditions())
	s.Equal([]domain.Field{
		{Key: "a", Value: domain.Int32(1)},
		{Key: "c", Value: domain.Int32(3)},
	}, f.Equalities())
	s.Equal("$gt", Gt.String())
}

// The positional operator resolves to the first element matching the
// filter leaves on the array.
func (s *MatcherTestSuite) TestMatchedIndex() {
	tests := []struct {
		doc    D
		filter D
		path   string
		index  int
	}{
		{D{{Key: "arr", Value: A{1, 5, 7}}}, D{{Key: "arr", Value: D{{Key: "$gt", Value: 4}}}}, "arr", 1},
		{D{{Key: "items", Value: A{D{{Key: "q", Value: 1}}, D{{Key: "q", Value: 5}}}}}, D{{Key: "items.q", Value: 5}}, "items", 1},
		{
			D{{Key: "items", Value: A{D{{Key: "q", Value: 1}}, D{{Key: "q", Value: 5}}}}},
			D{{Key: "items", Value: D{{Key: "$elemMatch", Value: D{{Key: "q", Value: D{{Key: "$gt", Value: 2}}}}}}}},
			"items", 1,
		},
		{
			D{{Key: "a", Value: D{{Key: "b", Value: A{"x", "y"}}}}},
			D{{Key: "$and", Value: A{D{{Key: "a.b", Value: "y"}}}}},
			"a.b", 1,
		},
	}
	for _, tt := range tests {
		f, err := s.mtchr.Parse(tt.filter)
		s.Require().NoError(err)
		i, err := s.mtchr.MatchedIndex(domain.MustDocument(tt.doc), f, tt.path)
		s.NoError(err)
		s.Equal(tt.index, i, "%v", tt.filter)
	}

	f, err := s.mtchr.Parse(D{{Key: "other", Value: 1}})
	s.Require().NoError(err)
	_, err = s.mtchr.MatchedIndex(domain.MustDocument(D{{Key: "arr", Value: A{1}}}), f, "arr")
	s.ErrorIs(err, domain.ErrMalformed)
}

// Package-level helpers use a default matcher.
func (s *MatcherTestSuite) TestPackageParse() {
	f, err := Parse(domain.MustDocument(D{{Key: "a", Value: 1}}))
	s.NoError(err)
	s.False(f.IsEmpty())

	g, err := FilterOf(Where("a").Eq(1))
	s.NoError(err)
	s.Equal(f.Document(), g.Document())

	g, err = FilterOf(nil)
	s.NoError(err)
	s.True(g.IsEmpty())

	s.Equal(domain.String("x"), Where("a").Eq(1).Comment("x").filter.Comment())
}

func TestMatcherTestSuite(t *testing.T) {
	suite.Run(t, new(MatcherTestSuite))
}
