package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type LoggerTestSuite struct {
	suite.Suite
}

// Known environments build loggers with the requested level.
func (s *LoggerTestSuite) TestNewLogger() {
	l, err := NewLogger("prod", "warn")
	s.Require().NoError(err)
	s.False(l.Core().Enabled(zapcore.InfoLevel))
	s.True(l.Core().Enabled(zapcore.WarnLevel))

	l, err = NewLogger("dev", "")
	s.Require().NoError(err)
	s.True(l.Core().Enabled(zapcore.DebugLevel))

	l, err = NewLogger("", "")
	s.Require().NoError(err)
	s.False(l.Core().Enabled(zapcore.ErrorLevel))
}

// Unknown environments and levels are rejected.
func (s *LoggerTestSuite) TestErrors() {
	_, err := NewLogger("staging", "")
	s.ErrorContains(err, "staging")

	_, err = NewLogger("prod", "loud")
	s.ErrorContains(err, "loud")
}

// Loggers travel in contexts.
func (s *LoggerTestSuite) TestContext() {
	core, logs := observer.New(zapcore.InfoLevel)
	l := zap.New(core)

	ctx := ContextWithLogger(context.Background(), l)
	FromContext(ctx).Info("hello")
	s.Equal(1, logs.Len())

	FromContext(context.Background(), l).Info("fallback")
	s.Equal(2, logs.Len())

	s.NotNil(FromContext(context.Background()))
}

func TestLoggerTestSuite(t *testing.T) {
	suite.Run(t, new(LoggerTestSuite))
}
