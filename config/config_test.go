package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/topogo/heading"
	"go.viam.com/topogo/logging"
	"go.viam.com/topogo/serial"
	"go.viam.com/topogo/voice"
)

func writeConfig(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "topogo.json")
	test.That(t, os.WriteFile(path, []byte(contents), 0o600), test.ShouldBeNil)
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	test.That(t, cfg.Validate(), test.ShouldBeNil)
	test.That(t, cfg.Voice.Threshold, test.ShouldEqual, voice.DefaultThreshold)
	test.That(t, cfg.Serial.Serial.BaudRate, test.ShouldEqual, serial.DefaultBaudRate)
	test.That(t, cfg.Controller.FrameQueueSize, test.ShouldEqual, 2)
}

func TestRead(t *testing.T) {
	t.Setenv("TOPOGO_TEST_PORT", "/dev/ttyACM3")
	path := writeConfig(t, t.TempDir(), `{
		"serial": {"port": "${TOPOGO_TEST_PORT}", "serial": {"baud_rate": 19200}, "ack_timeout": "500ms"},
		"voice": {"threshold": 0.8, "vocabulary": {"go": "forward", "halt": "stop"}},
		"gesture": {"raise_degrees": 80},
		"skeleton": {"smoothing_window": 3},
		"controller": {"initial_heading": "left"}
	}`)

	cfg, err := Read(path, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, path)
	test.That(t, cfg.Serial.Port, test.ShouldEqual, "/dev/ttyACM3")
	test.That(t, cfg.Serial.Serial.BaudRate, test.ShouldEqual, 19200)
	// Unset fields keep their defaults.
	test.That(t, cfg.Serial.Serial.DataBits, test.ShouldEqual, serial.DefaultDataBits)
	test.That(t, cfg.Serial.AckTimeout, test.ShouldEqual, 500*time.Millisecond)
	test.That(t, cfg.Voice.Threshold, test.ShouldEqual, 0.8)
	test.That(t, cfg.Voice.Vocabulary, test.ShouldResemble, map[string]string{"go": "forward", "halt": "stop"})
	test.That(t, cfg.Gesture.RaiseDegrees, test.ShouldEqual, 80.0)
	test.That(t, cfg.Gesture.LowerDegrees, test.ShouldEqual, 45.0)
	test.That(t, cfg.Skeleton.SmoothingWindow, test.ShouldEqual, 3)
	test.That(t, cfg.Skeleton.Calibration.FocalLength, test.ShouldAlmostEqual, 571.26)
	test.That(t, cfg.Controller.InitialHeading, test.ShouldEqual, heading.Left)
	test.That(t, cfg.Controller.CommandTimeout, test.ShouldEqual, DefaultCommandTimeout)
}

func TestReadEnvDefault(t *testing.T) {
	cfg, err := FromReader("", strings.NewReader(`{"serial": {"port": "${TOPOGO_UNSET_PORT:-COM3}"}}`),
		logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Serial.Port, test.ShouldEqual, "COM3")
}

func TestReadInvalid(t *testing.T) {
	logger := logging.NewTestLogger(t)
	for _, tc := range []struct {
		name     string
		contents string
		errMsg   string
	}{
		{"bad json", `{"serial": `, "json"},
		{"unknown field", `{"serail": {}}`, "serail"},
		{"threshold", `{"voice": {"threshold": 2}}`, "threshold"},
		{"bad intent", `{"voice": {"vocabulary": {"x": "fly"}}}`, "fly"},
		{"gesture", `{"gesture": {"raise_degrees": 30}}`, "lower_degrees"},
		{"heading", `{"controller": {"initial_heading": "north"}}`, "north"},
		{"queue", `{"controller": {"frame_queue_size": 0}}`, "frame_queue_size"},
		{"baud", `{"serial": {"port": "COM3", "serial": {"baud_rate": -1}}}`, "baud_rate"},
		{"calibration", `{"skeleton": {"calibration": {"focal_length": 0}}}`, "calibration"},
		{"log size", `{"log": {"file": "topogo.log", "max_size_mb": 0}}`, "max_size_mb"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromReader("", strings.NewReader(tc.contents), logger)
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.errMsg)
		})
	}

	_, err := Read(filepath.Join(t.TempDir(), "nope.json"), logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestWatcher(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"voice": {"threshold": 0.7}}`)

	w, err := NewWatcher(context.Background(), path, logger)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, w.Close(), test.ShouldBeNil)
	}()

	// An invalid revision is skipped.
	writeConfig(t, dir, `{"voice": {"threshold": 7}}`)
	// Unrelated files are ignored.
	test.That(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o600), test.ShouldBeNil)
	writeConfig(t, dir, `{"voice": {"threshold": 0.9}}`)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		select {
		case cfg := <-w.Config():
			test.That(tb, cfg.Voice.Threshold, test.ShouldEqual, 0.9)
		default:
			tb.Fatal("no config yet")
		}
	})
}
