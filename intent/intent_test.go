package intent

import (
	"testing"

	"go.viam.com/test"
)

func TestParse(t *testing.T) {
	for _, i := range All {
		parsed, err := Parse(i.String())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, parsed, test.ShouldEqual, i)
	}

	parsed, err := Parse(" turn_left ")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, parsed, test.ShouldEqual, TurnLeft)

	_, err = Parse("UNKNOWN")
	test.That(t, err, test.ShouldNotBeNil)
	_, err = Parse("jump")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "jump")
}

func TestIsTurn(t *testing.T) {
	test.That(t, TurnLeft.IsTurn(), test.ShouldBeTrue)
	test.That(t, TurnRight.IsTurn(), test.ShouldBeTrue)
	test.That(t, Forward.IsTurn(), test.ShouldBeFalse)
	test.That(t, Intent(42).String(), test.ShouldEqual, "Intent(42)")
}
