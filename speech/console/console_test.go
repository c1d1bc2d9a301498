package console

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/topogo/logging"
	"go.viam.com/topogo/speech"
)

func TestParseLine(t *testing.T) {
	res, rejected, err := ParseLine("sit 0.85")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rejected, test.ShouldBeFalse)
	test.That(t, res.Semantic, test.ShouldEqual, "SIT")
	test.That(t, res.Confidence, test.ShouldAlmostEqual, 0.85)

	res, _, err = ParseLine("MOVE")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Confidence, test.ShouldEqual, DefaultConfidence)

	res, rejected, err = ParseLine("? HI 0.3")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rejected, test.ShouldBeTrue)
	test.That(t, res.Semantic, test.ShouldEqual, "HI")

	res, _, err = ParseLine("  // comment")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Semantic, test.ShouldBeEmpty)

	_, _, err = ParseLine("SIT high")
	test.That(t, err, test.ShouldNotBeNil)
	_, _, err = ParseLine("SIT 1.5")
	test.That(t, err, test.ShouldNotBeNil)
	_, _, err = ParseLine("MOVE NaN")
	test.That(t, err, test.ShouldNotBeNil)
	_, _, err = ParseLine("MOVE +Inf")
	test.That(t, err, test.ShouldNotBeNil)
	_, _, err = ParseLine("SIT 0.5 extra")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRecognizer(t *testing.T) {
	logger := logging.NewTestLogger(t)
	clk := clock.NewMock()
	input := strings.NewReader("SIT 0.9\n\n?HI 0.2\nbogus 7\nMOVE\n")
	rec := New(input, clk, logger)

	var mu sync.Mutex
	var results, rejected []speech.Result
	reg1 := rec.OnResult(func(r speech.Result) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, r)
	})
	reg2 := rec.OnRejected(func(r speech.Result) {
		mu.Lock()
		defer mu.Unlock()
		rejected = append(rejected, r)
	})
	defer reg1.Close()
	defer reg2.Close()

	test.That(t, rec.Start(context.Background()), test.ShouldBeNil)
	test.That(t, rec.Start(context.Background()), test.ShouldNotBeNil)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		mu.Lock()
		defer mu.Unlock()
		test.That(tb, results, test.ShouldHaveLength, 2)
		test.That(tb, rejected, test.ShouldHaveLength, 1)
	})
	mu.Lock()
	test.That(t, results[0].Semantic, test.ShouldEqual, "SIT")
	test.That(t, results[0].Time, test.ShouldEqual, clk.Now())
	test.That(t, results[1].Semantic, test.ShouldEqual, "MOVE")
	test.That(t, rejected[0].Semantic, test.ShouldEqual, "HI")
	mu.Unlock()

	test.That(t, rec.Stop(context.Background()), test.ShouldBeNil)
	test.That(t, rec.Stop(context.Background()), test.ShouldBeNil)
}

func TestRecognizerStopClosesInput(t *testing.T) {
	logger := logging.NewTestLogger(t)
	pr, pw := io.Pipe()
	defer pw.Close()
	rec := New(pr, nil, logger)

	got := make(chan speech.Result, 1)
	rec.OnResult(func(r speech.Result) { got <- r })
	test.That(t, rec.Start(context.Background()), test.ShouldBeNil)

	_, err := pw.Write([]byte("STOP 0.8\n"))
	test.That(t, err, test.ShouldBeNil)
	r := <-got
	test.That(t, r.Semantic, test.ShouldEqual, "STOP")

	test.That(t, rec.Stop(context.Background()), test.ShouldBeNil)
}

// blockingInput hides the pipe's Close so the recognizer cannot close it.
type blockingInput struct {
	io.Reader
}

func TestRecognizerStopWithoutCloser(t *testing.T) {
	logger := logging.NewTestLogger(t)
	pr, pw := io.Pipe()
	defer pr.Close()
	rec := New(blockingInput{pr}, nil, logger)

	var mu sync.Mutex
	var results []speech.Result
	rec.OnResult(func(r speech.Result) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, r)
	})
	test.That(t, rec.Start(context.Background()), test.ShouldBeNil)

	// Stop does not wait for the blocked Read.
	test.That(t, rec.Stop(context.Background()), test.ShouldBeNil)

	// The parked reader consumes one more line and exits without dispatching it.
	_, err := pw.Write([]byte("MOVE 0.9\n"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pw.Close(), test.ShouldBeNil)
	mu.Lock()
	test.That(t, results, test.ShouldBeEmpty)
	mu.Unlock()
}

func TestRecognizerUnavailable(t *testing.T) {
	rec := New(nil, nil, logging.NewTestLogger(t))
	err := rec.Start(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, speech.ErrUnavailable.Error())
}
