package heading

import (
	"sync"
	"testing"

	"go.viam.com/test"

	"go.viam.com/topogo/intent"
)

func TestTurnTables(t *testing.T) {
	test.That(t, TurnRight(Up), test.ShouldEqual, Right)
	test.That(t, TurnRight(Right), test.ShouldEqual, Down)
	test.That(t, TurnRight(Down), test.ShouldEqual, Left)
	test.That(t, TurnRight(Left), test.ShouldEqual, Up)
	test.That(t, TurnLeft(Up), test.ShouldEqual, Left)

	for d := Direction(0); d < NumDirections; d++ {
		test.That(t, TurnLeft(TurnRight(d)), test.ShouldEqual, d)
		test.That(t, TurnRight(TurnLeft(d)), test.ShouldEqual, d)

		cur := d
		for i := 0; i < 4; i++ {
			cur = TurnRight(cur)
		}
		test.That(t, cur, test.ShouldEqual, d)
	}
}

func TestDisplacement(t *testing.T) {
	test.That(t, Displacement(Up), test.ShouldResemble, Vector{0, -1})
	test.That(t, Displacement(Right), test.ShouldResemble, Vector{1, 0})
	test.That(t, Displacement(Down), test.ShouldResemble, Vector{0, 1})
	test.That(t, Displacement(Left), test.ShouldResemble, Vector{-1, 0})

	for d := Direction(0); d < NumDirections; d++ {
		v := Displacement(d)
		test.That(t, v.X*v.X+v.Y*v.Y, test.ShouldEqual, 1)
		opposite := Displacement(TurnRight(TurnRight(d)))
		test.That(t, opposite, test.ShouldResemble, Vector{-v.X, -v.Y})
	}
}

func TestInvalidDirection(t *testing.T) {
	for _, d := range []Direction{-1, NumDirections, 42} {
		test.That(t, d.Valid(), test.ShouldBeFalse)
		test.That(t, TurnRight(d), test.ShouldEqual, d)
		test.That(t, TurnLeft(d), test.ShouldEqual, d)
		test.That(t, Displacement(d), test.ShouldResemble, Vector{})
	}
}

func TestParseDirection(t *testing.T) {
	for d := Direction(0); d < NumDirections; d++ {
		parsed, err := ParseDirection(d.String())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, parsed, test.ShouldEqual, d)
	}
	parsed, err := ParseDirection("DOWN")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, parsed, test.ShouldEqual, Down)

	_, err = ParseDirection("north")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, Direction(9).String(), test.ShouldEqual, "Direction(9)")
}

func TestHeading(t *testing.T) {
	_, err := New(Direction(7))
	test.That(t, err, test.ShouldNotBeNil)

	h, err := New(Up)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, h.Current(), test.ShouldEqual, Up)

	d, changed := h.Apply(intent.TurnRight)
	test.That(t, changed, test.ShouldBeTrue)
	test.That(t, d, test.ShouldEqual, Right)

	d, changed = h.Apply(intent.Forward)
	test.That(t, changed, test.ShouldBeFalse)
	test.That(t, d, test.ShouldEqual, Right)

	test.That(t, h.TurnLeft(), test.ShouldEqual, Up)
	test.That(t, h.TurnLeft(), test.ShouldEqual, Left)
	h.Reset()
	test.That(t, h.Current(), test.ShouldEqual, Up)
}

func TestHeadingConcurrentTurns(t *testing.T) {
	h, err := New(Up)
	test.That(t, err, test.ShouldBeNil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h.TurnRight()
			}
		}()
	}
	wg.Wait()
	// 800 quarter turns is a whole number of revolutions.
	test.That(t, h.Current(), test.ShouldEqual, Up)
}
