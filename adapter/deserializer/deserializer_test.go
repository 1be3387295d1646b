package deserializer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/sboesebeck/morphium-sub001/adapter/decoder"
	"github.com/sboesebeck/morphium-sub001/adapter/serializer"
	"github.com/sboesebeck/morphium-sub001/domain"
)

type D = bson.D

type A = bson.A

var ctx = context.Background()

type DeserializerTestSuite struct {
	suite.Suite
	d *Deserializer
}

func (s *DeserializerTestSuite) SetupTest() {
	s.d = NewDeserializer(decoder.NewDecoder())
}

func (s *DeserializerTestSuite) deserialize(b string) *domain.Document {
	doc, err := s.d.Deserialize(ctx, []byte(b))
	s.Require().NoError(err)
	return doc
}

// Can deserialize scalars, keeping field order.
func (s *DeserializerTestSuite) TestScalars() {
	doc := s.deserialize(`{"b":"text","a":true,"n":1,"l":3000000000,"f":1.5,"z":null}`)
	s.Equal([]string{"b", "a", "n", "l", "f", "z"}, doc.Keys())
	s.Equal("text", doc.Get("b").Str())
	s.True(doc.Get("a").Bool())
	s.Equal(domain.KindInt32, doc.Get("n").Kind())
	s.Equal(domain.KindInt64, doc.Get("l").Kind())
	s.Equal(domain.KindDouble, doc.Get("f").Kind())
	s.True(doc.Get("z").IsNull())
}

// Extended JSON wrappers become typed values.
func (s *DeserializerTestSuite) TestWrappers() {
	doc := s.deserialize(`{"_id":{"$oid":"65f000000000000000000001"},"at":{"$date":"2024-05-01T00:00:00Z"},"l":{"$numberLong":"2"}}`)
	s.Equal(domain.KindObjectID, doc.ID().Kind())
	s.Equal(domain.KindDateTime, doc.Get("at").Kind())
	s.True(doc.Get("at").Time().Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))
	s.Equal(domain.KindInt64, doc.Get("l").Kind())
}

// Serialized documents deserialize into equal documents.
func (s *DeserializerTestSuite) TestRoundTrip() {
	original := domain.MustDocument(D{
		{Key: "_id", Value: bson.NewObjectID()},
		{Key: "name", Value: "ann"},
		{Key: "sub", Value: D{{Key: "x", Value: A{1, "y", D{{Key: "z", Value: false}}}}}},
		{Key: "at", Value: time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)},
	})
	b, err := serializer.NewSerializer().Serialize(ctx, original)
	s.Require().NoError(err)
	s.Equal(original.String(), s.deserialize(string(b)).String())
}

// Documents can be decoded into Go values.
func (s *DeserializerTestSuite) TestInto() {
	var res struct {
		Name string `bson:"name"`
		Age  int    `bson:"age"`
	}
	s.Require().NoError(s.d.DeserializeInto(ctx, []byte(`{"name":"ann","age":30}`), &res))
	s.Equal("ann", res.Name)
	s.Equal(30, res.Age)

	s.ErrorIs(s.d.DeserializeInto(ctx, []byte(`{}`), nil), domain.ErrTargetNil)
}

// Invalid input and cancelled contexts are reported.
func (s *DeserializerTestSuite) TestErrors() {
	_, err := s.d.Deserialize(ctx, []byte(`{"a":`))
	var e domain.ErrDocumentType
	s.ErrorAs(err, &e)

	_, err = s.d.Deserialize(ctx, []byte(`[1, 2]`))
	s.Error(err)

	c, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.d.Deserialize(c, []byte(`{}`))
	s.ErrorIs(err, domain.ErrCancelled)
}

func TestDeserializerTestSuite(t *testing.T) {
	suite.Run(t, new(DeserializerTestSuite))
}
