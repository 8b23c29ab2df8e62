package logging

import (
	"testing"

	"go.viam.com/test"
)

func TestNewLogger(t *testing.T) {
	logger := NewLogger("motion")
	test.That(t, logger, test.ShouldNotBeNil)
	logger.Infow("started", "component", "motion")
}

func TestNewTestLogger(t *testing.T) {
	logger := NewTestLogger(t)
	test.That(t, logger, test.ShouldNotBeNil)
	logger.Debug("visible only on test failure")
}

func TestDebugLoggerLevel(t *testing.T) {
	logger := NewDebugLogger("noisy")
	test.That(t, logger.Desugar().Core().Enabled(-1), test.ShouldBeTrue)
}
