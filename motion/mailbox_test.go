package motion

import (
	"testing"

	"go.viam.com/test"
)

func TestMailboxLatestWins(t *testing.T) {
	m := NewMailbox[int]()
	_, ok := m.Take()
	test.That(t, ok, test.ShouldBeFalse)

	m.Put(1)
	m.Put(2)
	v, ok := m.Take()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, v, test.ShouldEqual, 2)

	// drained
	_, ok = m.Take()
	test.That(t, ok, test.ShouldBeFalse)
}

func TestWiggleDetector(t *testing.T) {
	// oscillation: constant commanded speed, no net displacement
	w := newWiggleDetector(10)
	tripped := false
	pos := []float64{0}
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			pos[0] = 0.01
		} else {
			pos[0] = -0.01
		}
		if w.observe(pos, []float64{1}, 0.02) {
			tripped = true
		}
	}
	test.That(t, tripped, test.ShouldBeTrue)

	// steady progress never trips
	w = newWiggleDetector(10)
	q := 0.0
	for i := 0; i < 40; i++ {
		q += 0.02
		test.That(t, w.observe([]float64{q}, []float64{1}, 0.02), test.ShouldBeFalse)
	}
}

func TestCodeOfMapping(t *testing.T) {
	test.That(t, codeOf(nil), test.ShouldEqual, Success)
	test.That(t, codeOf(ErrTimeout), test.ShouldEqual, Timeout)
	test.That(t, codeOf(ErrCancelled), test.ShouldEqual, Cancelled)
}
