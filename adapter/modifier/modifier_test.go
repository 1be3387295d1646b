package modifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/sboesebeck/morphium-sub001/adapter/matcher"
	"github.com/sboesebeck/morphium-sub001/domain"
)

type D = bson.D

type A = bson.A

type timeGetterMock struct{ mock.Mock }

// GetTime implements [domain.TimeGetter].
func (t *timeGetterMock) GetTime() time.Time {
	return t.Called().Get(0).(time.Time)
}

type ModifierTestSuite struct {
	suite.Suite
	modifier *Modifier
	tg       *timeGetterMock
}

func (s *ModifierTestSuite) SetupTest() {
	s.tg = new(timeGetterMock)
	s.modifier = NewModifier(WithTimeGetter(s.tg))
}

func (s *ModifierTestSuite) SetupSubTest() {
	s.SetupTest()
}

// modify applies update to doc, selected by filter, and requires success.
func (s *ModifierTestSuite) modify(doc, update, filter any) (*domain.Document, bool) {
	u, err := s.modifier.Parse(update)
	s.Require().NoError(err)
	f, err := matcher.FilterOf(filter)
	s.Require().NoError(err)
	res, changed, err := s.modifier.Apply(domain.MustDocument(doc), u, f)
	s.Require().NoError(err)
	return res, changed
}

func (s *ModifierTestSuite) modifyErr(doc, update, filter any) error {
	u, err := s.modifier.Parse(update)
	s.Require().NoError(err)
	f, err := matcher.FilterOf(filter)
	s.Require().NoError(err)
	res, changed, err := s.modifier.Apply(domain.MustDocument(doc), u, f)
	s.Nil(res)
	s.False(changed)
	return err
}

func (s *ModifierTestSuite) Modifies(doc, update, expected any) {
	res, _ := s.modify(doc, update, nil)
	s.Equal(domain.MustDocument(expected), res, "%v", update)
}

// Documents without operators replace the document but keep its _id.
func (s *ModifierTestSuite) TestReplace() {
	s.Modifies(
		D{{Key: "_id", Value: "keepit"}, {Key: "some", Value: "thing"}},
		D{{Key: "replace", Value: "done"}, {Key: "bloup", Value: A{1, 8}}},
		D{{Key: "_id", Value: "keepit"}, {Key: "replace", Value: "done"}, {Key: "bloup", Value: A{1, 8}}},
	)
	s.Modifies(
		D{{Key: "_id", Value: 1}},
		D{{Key: "a", Value: 2}, {Key: "_id", Value: 1}},
		D{{Key: "_id", Value: 1}, {Key: "a", Value: 2}},
	)

	err := s.modifyErr(D{{Key: "_id", Value: "keepit"}}, D{{Key: "_id", Value: "donttry"}}, nil)
	s.ErrorIs(err, domain.ErrCannotModifyID)

	u, err := s.modifier.Parse(D{{Key: "a", Value: 1}})
	s.NoError(err)
	s.True(u.IsReplacement())
	s.Equal([]string{"a"}, u.Fields())
}

// Update documents are validated before anything is applied.
func (s *ModifierTestSuite) TestParseErrors() {
	tests := []struct {
		update D
		op     string
		field  string
	}{
		{D{{Key: "a", Value: 1}, {Key: "$set", Value: D{{Key: "b", Value: 1}}}}, "", ""},
		{D{{Key: "$modify", Value: D{{Key: "a", Value: 1}}}}, "$modify", ""},
		{D{{Key: "$set", Value: "this stat"}}, "$set", ""},
		{D{{Key: "$set", Value: D{}}}, "$set", ""},
		{D{{Key: "$set", Value: D{{Key: "a", Value: 1}}}, {Key: "$inc", Value: D{{Key: "a.b", Value: 1}}}}, "", "a"},
		{D{{Key: "$set", Value: D{{Key: "a", Value: 1}}}, {Key: "$unset", Value: D{{Key: "a", Value: ""}}}}, "", "a"},
		{D{{Key: "$set", Value: D{{Key: "b", Value: 1}}}, {Key: "$rename", Value: D{{Key: "a", Value: "b"}}}}, "", "b"},
		{D{{Key: "$inc", Value: D{{Key: "a", Value: "1"}}}}, "$inc", "a"},
		{D{{Key: "$mul", Value: D{{Key: "a", Value: nil}}}}, "$mul", "a"},
		{D{{Key: "$pop", Value: D{{Key: "a", Value: 2}}}}, "$pop", "a"},
		{D{{Key: "$rename", Value: D{{Key: "a", Value: 1}}}}, "$rename", "a"},
		{D{{Key: "$rename", Value: D{{Key: "a.$", Value: "b"}}}}, "$rename", "a.$"},
		{D{{Key: "$currentDate", Value: D{{Key: "a", Value: D{{Key: "$type", Value: "clock"}}}}}}, "$currentDate", "a"},
		{D{{Key: "$pullAll", Value: D{{Key: "a", Value: 1}}}}, "$pullAll", "a"},
		{D{{Key: "$push", Value: D{{Key: "a", Value: D{{Key: "$each", Value: 1}}}}}}, "$each", "a"},
		{D{{Key: "$push", Value: D{{Key: "a", Value: D{{Key: "$each", Value: A{}}, {Key: "$foo", Value: 1}}}}}}, "$push", "a"},
		{D{{Key: "$push", Value: D{{Key: "a", Value: D{{Key: "$each", Value: A{}}, {Key: "$slice", Value: 1.5}}}}}}, "$slice", "a"},
		{D{{Key: "$push", Value: D{{Key: "a", Value: D{{Key: "$each", Value: A{}}, {Key: "$sort", Value: 2}}}}}}, "$sort", "a"},
		{D{{Key: "$addToSet", Value: D{{Key: "a", Value: D{{Key: "$each", Value: A{}}, {Key: "$slice", Value: 1}}}}}}, "$addToSet", "a"},
		{D{{Key: "$set", Value: D{{Key: "a.$.b.$", Value: 1}}}}, "$set", "a.$.b.$"},
		{D{{Key: "$set", Value: D{{Key: "$", Value: 1}}}}, "$set", "$"},
		{D{{Key: "$set", Value: D{{Key: "a.$[]", Value: 1}}}}, "$set", "a.$[]"},
		{D{{Key: "a.b", Value: 1}}, "", "a.b"},
	}
	for _, tt := range tests {
		_, err := s.modifier.Parse(tt.update)
		s.ErrorIs(err, domain.ErrMalformed, "%v", tt.update)
		var mErr domain.ErrMalformedExpression
		if s.ErrorAs(err, &mErr, "%v", tt.update) {
			s.Equal("update", mErr.Kind)
			s.Equal(tt.op, mErr.Operator, "%v", tt.update)
			s.Equal(tt.field, mErr.Field, "%v", tt.update)
		}
	}

	_, err := s.modifier.Parse(D{{Key: "$pull", Value: D{{Key: "a", Value: D{{Key: "$gte", Value: 1}, {Key: "b", Value: 2}}}}}})
	s.ErrorIs(err, domain.ErrMalformed)

	_, err = s.modifier.Parse(42)
	s.ErrorIs(err, domain.ErrMalformed)
}

// Parsed updates serialize back to the document they came from.
func (s *ModifierTestSuite) TestDocument() {
	doc := D{
		{Key: "$set", Value: D{{Key: "a", Value: 1}, {Key: "b.c", Value: "x"}}},
		{Key: "$push", Value: D{{Key: "arr", Value: D{{Key: "$each", Value: A{1, 2}}, {Key: "$slice", Value: -3}}}}},
		{Key: "$rename", Value: D{{Key: "old", Value: "new"}}},
	}
	u, err := Parse(doc)
	s.Require().NoError(err)
	s.Equal(domain.MustDocument(doc), u.Document())
	s.Equal([]string{"a", "b.c", "arr", "old", "new"}, u.Fields())
	s.False(u.IsReplacement())

	again, err := s.modifier.Parse(u)
	s.NoError(err)
	s.Equal(u.Document(), again.Document())
}

func (s *ModifierTestSuite) TestSet() {
	s.Run("ExistingFields", func() {
		doc := domain.MustDocument(D{{Key: "some", Value: "thing"}, {Key: "yup", Value: "yes"}, {Key: "nay", Value: "noes"}})
		u, err := s.modifier.Parse(D{{Key: "$set", Value: D{{Key: "some", Value: "changed"}, {Key: "nay", Value: "yes indeed"}}}})
		s.Require().NoError(err)
		res, changed, err := s.modifier.Apply(doc, u, matcher.Filter{})
		s.NoError(err)
		s.True(changed)
		s.Equal(domain.MustDocument(D{{Key: "some", Value: "changed"}, {Key: "yup", Value: "yes"}, {Key: "nay", Value: "yes indeed"}}), res)
		// original untouched
		s.Equal(domain.MustDocument(D{{Key: "some", Value: "thing"}, {Key: "yup", Value: "yes"}, {Key: "nay", Value: "noes"}}), doc)
	})
	s.Run("CreatesNested", func() {
		s.Modifies(
			D{{Key: "yup", Value: "yes"}},
			D{{Key: "$set", Value: D{{Key: "a.b.c", Value: 1}}}},
			D{{Key: "yup", Value: "yes"}, {Key: "a", Value: D{{Key: "b", Value: D{{Key: "c", Value: 1}}}}}},
		)
	})
	s.Run("PadsArrays", func() {
		s.Modifies(
			D{{Key: "yup", Value: A{0, 1}}},
			D{{Key: "$set", Value: D{{Key: "yup.4", Value: 4}}}},
			D{{Key: "yup", Value: A{0, 1, nil, nil, 4}}},
		)
	})
	s.Run("ThroughScalar", func() {
		err := s.modifyErr(D{{Key: "a", Value: 1}}, D{{Key: "$set", Value: D{{Key: "a.b", Value: 1}}}}, nil)
		s.ErrorIs(err, domain.ErrMalformed)
	})
	s.Run("Unchanged", func() {
		_, changed := s.modify(D{{Key: "a", Value: 1}}, D{{Key: "$set", Value: D{{Key: "a", Value: 1}}}}, nil)
		s.False(changed)
		_, changed = s.modify(D{{Key: "a", Value: 1}}, D{{Key: "$set", Value: D{{Key: "a", Value: 1.0}}}}, nil)
		s.True(changed)
	})
}

func (s *ModifierTestSuite) TestUnset() {
	s.Modifies(
		D{{Key: "a", Value: 1}, {Key: "b", Value: D{{Key: "c", Value: 2}, {Key: "d", Value: 3}}}},
		D{{Key: "$unset", Value: D{{Key: "a", Value: ""}, {Key: "b.c", Value: true}, {Key: "nope", Value: 1}}}},
		D{{Key: "b", Value: D{{Key: "d", Value: 3}}}},
	)
	s.Modifies(
		D{{Key: "arr", Value: A{1, 2, 3}}},
		D{{Key: "$unset", Value: D{{Key: "arr.1", Value: ""}}}},
		D{{Key: "arr", Value: A{1, nil, 3}}},
	)
}

// $inc promotes to the widest numeric kind and widens on overflow.
func (s *ModifierTestSuite) TestInc() {
	tests := []struct {
		doc, inc, expected any
	}{
		{int32(1), int32(2), int32(3)},
		{int32(1), int64(2), int64(3)},
		{int32(1), 0.5, 1.5},
		{int64(1), int32(-2), int64(-1)},
		{int32(2147483647), int32(1), int64(2147483648)},
		{int64(9223372036854775807), int64(1), 9223372036854775808.0},
	}
	for _, tt := range tests {
		s.Modifies(
			D{{Key: "n", Value: tt.doc}},
			D{{Key: "$inc", Value: D{{Key: "n", Value: tt.inc}}}},
			D{{Key: "n", Value: tt.expected}},
		)
	}

	s.Modifies(D{}, D{{Key: "$inc", Value: D{{Key: "a.n", Value: 5}}}}, D{{Key: "a", Value: D{{Key: "n", Value: 5}}}})

	for _, v := range []any{"1", nil, A{1}} {
		err := s.modifyErr(D{{Key: "n", Value: v}}, D{{Key: "$inc", Value: D{{Key: "n", Value: 1}}}}, nil)
		s.ErrorIs(err, domain.ErrMalformed)
		var fErr ErrModFieldType
		if s.ErrorAs(err, &fErr) {
			s.Equal("$inc", fErr.Mod)
			s.Equal("n", fErr.Field)
		}
	}
}

func (s *ModifierTestSuite) TestMul() {
	s.Modifies(D{{Key: "n", Value: 3}}, D{{Key: "$mul", Value: D{{Key: "n", Value: 2.5}}}}, D{{Key: "n", Value: 7.5}})
	s.Modifies(D{{Key: "n", Value: 3}}, D{{Key: "$mul", Value: D{{Key: "n", Value: 4}}}}, D{{Key: "n", Value: 12}})
	s.Modifies(D{}, D{{Key: "$mul", Value: D{{Key: "n", Value: int64(4)}}}}, D{{Key: "n", Value: int64(0)}})

	err := s.modifyErr(D{{Key: "n", Value: "x"}}, D{{Key: "$mul", Value: D{{Key: "n", Value: 2}}}}, nil)
	s.ErrorAs(err, &ErrModFieldType{})
}

func (s *ModifierTestSuite) TestMinMax() {
	s.Modifies(D{{Key: "n", Value: 5}}, D{{Key: "$min", Value: D{{Key: "n", Value: 3}}}}, D{{Key: "n", Value: 3}})
	s.Modifies(D{{Key: "n", Value: 5}}, D{{Key: "$min", Value: D{{Key: "n", Value: 8}}}}, D{{Key: "n", Value: 5}})
	s.Modifies(D{{Key: "n", Value: 5}}, D{{Key: "$max", Value: D{{Key: "n", Value: 8.5}}}}, D{{Key: "n", Value: 8.5}})
	s.Modifies(D{{Key: "n", Value: 5}}, D{{Key: "$max", Value: D{{Key: "n", Value: 2}}}}, D{{Key: "n", Value: 5}})
	s.Modifies(D{}, D{{Key: "$min", Value: D{{Key: "n", Value: 2}}}}, D{{Key: "n", Value: 2}})

	early := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)
	s.Modifies(D{{Key: "t", Value: late}}, D{{Key: "$min", Value: D{{Key: "t", Value: early}}}}, D{{Key: "t", Value: early}})

	err := s.modifyErr(D{{Key: "n", Value: "5"}}, D{{Key: "$max", Value: D{{Key: "n", Value: 2}}}}, nil)
	s.ErrorIs(err, domain.ErrMalformed)
}

func (s *ModifierTestSuite) TestPush() {
	s.Modifies(D{}, D{{Key: "$push", Value: D{{Key: "arr", Value: 1}}}}, D{{Key: "arr", Value: A{1}}})
	s.Modifies(
		D{{Key: "arr", Value: A{1}}},
		D{{Key: "$push", Value: D{{Key: "arr", Value: D{{Key: "a", Value: 1}}}}}},
		D{{Key: "arr", Value: A{1, D{{Key: "a", Value: 1}}}}},
	)
	s.Modifies(
		D{{Key: "arr", Value: A{1, 2}}},
		D{{Key: "$push", Value: D{{Key: "arr", Value: A{3}}}}},
		D{{Key: "arr", Value: A{1, 2, A{3}}}},
	)

	each := func(clauses ...bson.E) D {
		return D{{Key: "$push", Value: D{{Key: "arr", Value: append(D{{Key: "$each", Value: A{5, 0}}}, clauses...)}}}}
	}
	base := D{{Key: "arr", Value: A{1, 2, 3}}}
	s.Modifies(base, each(), D{{Key: "arr", Value: A{1, 2, 3, 5, 0}}})
	s.Modifies(base, each(bson.E{Key: "$position", Value: 1}), D{{Key: "arr", Value: A{1, 5, 0, 2, 3}}})
	s.Modifies(base, each(bson.E{Key: "$position", Value: -1}), D{{Key: "arr", Value: A{1, 2, 5, 0, 3}}})
	s.Modifies(base, each(bson.E{Key: "$position", Value: 10}), D{{Key: "arr", Value: A{1, 2, 3, 5, 0}}})
	s.Modifies(base, each(bson.E{Key: "$slice", Value: 2}), D{{Key: "arr", Value: A{1, 2}}})
	s.Modifies(base, each(bson.E{Key: "$slice", Value: -2}), D{{Key: "arr", Value: A{5, 0}}})
	s.Modifies(base, each(bson.E{Key: "$slice", Value: 0}), D{{Key: "arr", Value: A{}}})
	s.Modifies(base, each(bson.E{Key: "$slice", Value: -10}), D{{Key: "arr", Value: A{1, 2, 3, 5, 0}}})
	s.Modifies(base, each(bson.E{Key: "$sort", Value: -1}, bson.E{Key: "$slice", Value: 3}), D{{Key: "arr", Value: A{5, 3, 2}}})

	people := D{{Key: "arr", Value: A{D{{Key: "n", Value: "b"}, {Key: "age", Value: 3}}}}}
	s.Modifies(
		people,
		D{{Key: "$push", Value: D{{Key: "arr", Value: D{
			{Key: "$each", Value: A{D{{Key: "n", Value: "a"}, {Key: "age", Value: 3}}, D{{Key: "n", Value: "c"}, {Key: "age", Value: 1}}}},
			{Key: "$sort", Value: D{{Key: "age", Value: 1}, {Key: "n", Value: -1}}},
		}}}}},
		D{{Key: "arr", Value: A{
			D{{Key: "n", Value: "c"}, {Key: "age", Value: 1}},
			D{{Key: "n", Value: "b"}, {Key: "age", Value: 3}},
			D{{Key: "n", Value: "a"}, {Key: "age", Value: 3}},
		}}},
	)

	err := s.modifyErr(D{{Key: "arr", Value: "x"}}, D{{Key: "$push", Value: D{{Key: "arr", Value: 1}}}}, nil)
	var fErr ErrModFieldType
	s.ErrorAs(err, &fErr)
	s.Equal("array", fErr.Want)
	s.Equal(domain.KindString, fErr.Actual)
}

// $addToSet only appends values not deep-equal to an existing element.
func (s *ModifierTestSuite) TestAddToSet() {
	s.Modifies(D{}, D{{Key: "$addToSet", Value: D{{Key: "set", Value: 1}}}}, D{{Key: "set", Value: A{1}}})
	s.Modifies(
		D{{Key: "set", Value: A{1, D{{Key: "a", Value: 1}}}}},
		D{{Key: "$addToSet", Value: D{{Key: "set", Value: D{{Key: "a", Value: 1}}}}}},
		D{{Key: "set", Value: A{1, D{{Key: "a", Value: 1}}}}},
	)
	s.Modifies(
		D{{Key: "set", Value: A{1, 2}}},
		D{{Key: "$addToSet", Value: D{{Key: "set", Value: D{{Key: "$each", Value: A{2.0, 3, 3, 4}}}}}}},
		D{{Key: "set", Value: A{1, 2, 3, 4}}},
	)

	_, changed := s.modify(D{{Key: "set", Value: A{"x"}}}, D{{Key: "$addToSet", Value: D{{Key: "set", Value: "x"}}}}, nil)
	s.False(changed)

	res := domain.MustDocument(D{{Key: "set", Value: A{}}})
	u, err := s.modifier.Parse(D{{Key: "$addToSet", Value: D{{Key: "set", Value: 7}}}})
	s.Require().NoError(err)
	for range 20 {
		res, _, err = s.modifier.Apply(res, u, matcher.Filter{})
		s.Require().NoError(err)
	}
	s.Equal(domain.MustDocument(D{{Key: "set", Value: A{7}}}), res)
}

// $pop removes the last element with 1 and the first with -1.
func (s *ModifierTestSuite) TestPop() {
	arr := D{{Key: "arr", Value: A{10, 20, 30, 40, 50}}}
	pop := func(n int) D { return D{{Key: "$pop", Value: D{{Key: "arr", Value: n}}}} }

	s.Modifies(arr, pop(1), D{{Key: "arr", Value: A{10, 20, 30, 40}}})
	s.Modifies(arr, pop(-1), D{{Key: "arr", Value: A{20, 30, 40, 50}}})
	s.Modifies(D{{Key: "arr", Value: A{}}}, pop(1), D{{Key: "arr", Value: A{}}})
	s.Modifies(D{{Key: "arr", Value: A{}}}, pop(-1), D{{Key: "arr", Value: A{}}})
	s.Modifies(D{{Key: "other", Value: 1}}, pop(1), D{{Key: "other", Value: 1}})

	err := s.modifyErr(D{{Key: "arr", Value: 3}}, pop(1), nil)
	s.ErrorAs(err, &ErrModFieldType{})
}

func (s *ModifierTestSuite) TestPull() {
	s.Modifies(
		D{{Key: "arr", Value: A{"a", "b", "a", 1.0}}},
		D{{Key: "$pull", Value: D{{Key: "arr", Value: "a"}}}},
		D{{Key: "arr", Value: A{"b", 1.0}}},
	)
	s.Modifies(
		D{{Key: "arr", Value: A{1, 5, 6, 7, 2}}},
		D{{Key: "$pull", Value: D{{Key: "arr", Value: D{{Key: "$gte", Value: 6}}}}}},
		D{{Key: "arr", Value: A{1, 5, 2}}},
	)
	s.Modifies(
		D{{Key: "arr", Value: A{"apple", "banana", "avocado"}}},
		D{{Key: "$pull", Value: D{{Key: "arr", Value: bson.Regex{Pattern: "^a"}}}}},
		D{{Key: "arr", Value: A{"banana"}}},
	)
	s.Modifies(
		D{{Key: "results", Value: A{
			D{{Key: "item", Value: "A"}, {Key: "score", Value: 5}},
			D{{Key: "item", Value: "B"}, {Key: "score", Value: 8}, {Key: "extra", Value: true}},
			"B",
		}}},
		D{{Key: "$pull", Value: D{{Key: "results", Value: D{{Key: "score", Value: 8}, {Key: "item", Value: "B"}}}}}},
		D{{Key: "results", Value: A{D{{Key: "item", Value: "A"}, {Key: "score", Value: 5}}, "B"}}},
	)
	s.Modifies(
		D{{Key: "arr", Value: A{1, 2, 3}}},
		D{{Key: "$pull", Value: D{{Key: "arr", Value: D{{Key: "$or", Value: A{D{{Key: "x", Value: 1}}}}}}}}},
		D{{Key: "arr", Value: A{1, 2, 3}}},
	)
	s.Modifies(D{{Key: "b", Value: 1}}, D{{Key: "$pull", Value: D{{Key: "arr", Value: 1}}}}, D{{Key: "b", Value: 1}})

	s.Modifies(
		D{{Key: "arr", Value: A{0, 2, 5, 5, 1, 0}}},
		D{{Key: "$pullAll", Value: D{{Key: "arr", Value: A{0, 5}}}}},
		D{{Key: "arr", Value: A{2, 1}}},
	)

	err := s.modifyErr(D{{Key: "arr", Value: "x"}}, D{{Key: "$pull", Value: D{{Key: "arr", Value: 1}}}}, nil)
	s.ErrorAs(err, &ErrModFieldType{})
}

// $rename moves values between paths, ignoring missing sources.
func (s *ModifierTestSuite) TestRename() {
	s.Modifies(
		D{{Key: "a", Value: 1}, {Key: "b", Value: D{{Key: "c", Value: 2}}}},
		D{{Key: "$rename", Value: D{{Key: "a", Value: "z"}, {Key: "b.c", Value: "d.e"}}}},
		D{{Key: "b", Value: D{}}, {Key: "z", Value: 1}, {Key: "d", Value: D{{Key: "e", Value: 2}}}},
	)
	s.Modifies(
		D{{Key: "a", Value: 1}},
		D{{Key: "$rename", Value: D{{Key: "nope", Value: "z"}}}},
		D{{Key: "a", Value: 1}},
	)
}

// $currentDate stores the clock time as a date or a timestamp.
func (s *ModifierTestSuite) TestCurrentDate() {
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	s.tg.On("GetTime").Return(now).Twice()

	s.Modifies(
		D{},
		D{{Key: "$currentDate", Value: D{
			{Key: "d", Value: true},
			{Key: "ts", Value: D{{Key: "$type", Value: "timestamp"}}},
		}}},
		D{{Key: "d", Value: now}, {Key: "ts", Value: bson.Timestamp{T: uint32(now.Unix()), I: 1}}},
	)
	s.tg.AssertExpectations(s.T())
}

// The positional segment resolves to the first element matched by the
// filter that selected the document.
func (s *ModifierTestSuite) TestPositional() {
	res, _ := s.modify(
		D{{Key: "grades", Value: A{85, 80, 80}}},
		D{{Key: "$set", Value: D{{Key: "grades.$", Value: 82}}}},
		D{{Key: "grades", Value: 80}},
	)
	s.Equal(domain.MustDocument(D{{Key: "grades", Value: A{85, 82, 80}}}), res)

	res, _ = s.modify(
		D{{Key: "items", Value: A{D{{Key: "q", Value: 1}}, D{{Key: "q", Value: 5}}}}},
		D{{Key: "$inc", Value: D{{Key: "items.$.q", Value: 10}}}},
		D{{Key: "items.q", Value: D{{Key: "$gt", Value: 2}}}},
	)
	s.Equal(domain.MustDocument(D{{Key: "items", Value: A{D{{Key: "q", Value: 1}}, D{{Key: "q", Value: 15}}}}}), res)

	err := s.modifyErr(
		D{{Key: "grades", Value: A{85, 80}}},
		D{{Key: "$set", Value: D{{Key: "grades.$", Value: 82}}}},
		D{{Key: "other", Value: 1}},
	)
	var mErr domain.ErrMalformedExpression
	s.ErrorAs(err, &mErr)
	s.Equal("$", mErr.Operator)
	s.Equal("grades", mErr.Field)
}

// A failing operator leaves the document as it was.
func (s *ModifierTestSuite) TestAtomicity() {
	doc := domain.MustDocument(D{{Key: "a", Value: 0}, {Key: "s", Value: "str"}})
	u, err := s.modifier.Parse(D{
		{Key: "$set", Value: D{{Key: "a", Value: 1}}},
		{Key: "$inc", Value: D{{Key: "s", Value: 1}}},
	})
	s.Require().NoError(err)

	res, changed, err := s.modifier.Apply(doc, u, matcher.Filter{})
	s.Error(err)
	s.Nil(res)
	s.False(changed)
	s.Equal(domain.MustDocument(D{{Key: "a", Value: 0}, {Key: "s", Value: "str"}}), doc)
}

// Operators cannot change the identity field.
func (s *ModifierTestSuite) TestCannotModifyID() {
	err := s.modifyErr(D{{Key: "_id", Value: 1}}, D{{Key: "$set", Value: D{{Key: "_id", Value: 2}}}}, nil)
	s.ErrorIs(err, domain.ErrCannotModifyID)

	err = s.modifyErr(D{{Key: "_id", Value: 1}}, D{{Key: "$unset", Value: D{{Key: "_id", Value: ""}}}}, nil)
	s.ErrorIs(err, domain.ErrCannotModifyID)

	s.Modifies(D{{Key: "_id", Value: 1}}, D{{Key: "$set", Value: D{{Key: "_id", Value: 1}}}}, D{{Key: "_id", Value: 1}})

	s.modifier = NewModifier(WithIDField("key"))
	err = s.modifyErr(D{{Key: "key", Value: 1}}, D{{Key: "$inc", Value: D{{Key: "key", Value: 1}}}}, nil)
	s.ErrorIs(err, domain.ErrCannotModifyID)
	s.Modifies(D{{Key: "key", Value: 1}, {Key: "_id", Value: 1}}, D{{Key: "$inc", Value: D{{Key: "_id", Value: 1}}}}, D{{Key: "key", Value: 1}, {Key: "_id", Value: 2}})
}

// Upserts start from the equality conditions of the filter.
func (s *ModifierTestSuite) TestUpsert() {
	f, err := matcher.FilterOf(D{
		{Key: "a", Value: 1},
		{Key: "b.c", Value: 2},
		{Key: "x", Value: D{{Key: "$gt", Value: 3}}},
		{Key: "$and", Value: A{D{{Key: "d", Value: 4}}}},
		{Key: "$or", Value: A{D{{Key: "y", Value: 1}}}},
	})
	s.Require().NoError(err)
	u, err := s.modifier.Parse(D{
		{Key: "$set", Value: D{{Key: "e", Value: 5}}},
		{Key: "$setOnInsert", Value: D{{Key: "f", Value: 6}}},
	})
	s.Require().NoError(err)

	doc, err := s.modifier.Upsert(f, u)
	s.NoError(err)
	s.Equal(domain.MustDocument(D{
		{Key: "a", Value: 1},
		{Key: "b", Value: D{{Key: "c", Value: 2}}},
		{Key: "d", Value: 4},
		{Key: "e", Value: 5},
		{Key: "f", Value: 6},
	}), doc)

	// $setOnInsert is skipped by regular updates
	res, _, err := s.modifier.Apply(domain.MustDocument(D{{Key: "a", Value: 1}}), u, f)
	s.NoError(err)
	s.Equal(domain.MustDocument(D{{Key: "a", Value: 1}, {Key: "e", Value: 5}}), res)

	f, err = matcher.FilterOf(D{{Key: "_id", Value: 7}, {Key: "a", Value: 1}})
	s.Require().NoError(err)
	u, err = s.modifier.Parse(D{{Key: "z", Value: 1}})
	s.Require().NoError(err)
	doc, err = s.modifier.Upsert(f, u)
	s.NoError(err)
	s.Equal(domain.MustDocument(D{{Key: "_id", Value: 7}, {Key: "z", Value: 1}}), doc)
}

func TestModifierTestSuite(t *testing.T) {
	suite.Run(t, new(ModifierTestSuite))
}
