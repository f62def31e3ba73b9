package zerolog

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"

	"github.com/resumeforge/cvgate/pkg/cvgate"
)

func TestLogger_AllLevels(t *testing.T) {
	output := bytes.Buffer{}
	zlog := zerolog.New(&output)
	logger := NewLogger(zlog)

	logger.Debug("debug message", cvgate.Field{Key: "key", Value: "value"})
	logger.Info("info message", cvgate.Field{Key: "key", Value: "value"})
	logger.Warn("warn message", cvgate.Field{Key: "key", Value: "value"})
	logger.Error("error message", cvgate.Field{Key: "key", Value: "value"})

	if output.Len() == 0 {
		t.Error("Expected log output to be written")
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	output := bytes.Buffer{}
	zlog := zerolog.New(&output).Level(zerolog.WarnLevel)
	logger := NewLogger(zlog)

	logger.Debug("debug message")
	logger.Info("info message")

	if output.Len() != 0 {
		t.Error("Expected debug and info to be filtered out")
	}

	logger.Warn("warn message")
	logger.Error("error message")

	if output.Len() == 0 {
		t.Error("Expected warn and error to be logged")
	}
}

func TestLogger_MultipleFields(t *testing.T) {
	output := bytes.Buffer{}
	zlog := zerolog.New(&output)
	logger := NewLogger(zlog)

	logger.Info("admission recorded",
		cvgate.Field{Key: "user_id", Value: "user1"},
		cvgate.Field{Key: "category", Value: "chat"},
		cvgate.Field{Key: "used", Value: 3},
	)

	if output.Len() == 0 {
		t.Error("Expected log with multiple fields to be written")
	}
}
