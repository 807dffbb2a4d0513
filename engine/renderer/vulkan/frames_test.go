package vulkan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameClockSlots(t *testing.T) {
	c := newFrameClock(2)
	assert.Equal(t, uint64(1), c.stamp(), "bindings made before the first frame belong to it")

	var slots []uint32
	for range 4 {
		c.begin()
		slots = append(slots, c.slot())
		assert.Equal(t, c.current, c.stamp())
		c.end()
	}
	assert.Equal(t, []uint32{1, 0, 1, 0}, slots)
	assert.Equal(t, c.current+1, c.stamp())

	assert.Equal(t, uint64(1), newFrameClock(0).inFlight)
}

func TestFrameClockCompleted(t *testing.T) {
	c := newFrameClock(2)
	c.begin() // frame 1
	assert.False(t, c.completed(1))
	c.end()
	c.begin() // frame 2 waited on nothing older than frame 0
	assert.False(t, c.completed(1))
	c.end()
	c.begin() // frame 3 waited on the fence of frame 1
	assert.True(t, c.completed(1))
	assert.False(t, c.completed(2))
}

func TestVersionsReuseIdleCopy(t *testing.T) {
	c := newFrameClock(2)
	v := newVersions("a")
	assert.Equal(t, 0, v.writable(c), "an unused copy is writable")

	c.begin() // frame 1 reads a
	v.use(c.stamp())
	assert.Equal(t, -1, v.writable(c), "frame 1 still reads the only copy")

	v.setCurrent(v.add("b"))
	assert.Equal(t, 1, v.writable(c))
	c.end()

	c.begin() // frame 2 reads b
	v.use(c.stamp())
	assert.Equal(t, -1, v.writable(c), "frames 1 and 2 may both be in flight")
	c.end()

	c.begin() // frame 3, frame 1 is done
	assert.Equal(t, 0, v.writable(c))
	v.setCurrent(0)
	assert.Equal(t, "a", v.Current())
	assert.Len(t, v.all(), 2)
}

func TestRetiredReleasesAfterFramesInFlight(t *testing.T) {
	c := newFrameClock(2)
	var r retired[string]

	r.add(version[string]{value: "never bound"})
	c.begin() // frame 1
	r.add(version[string]{value: "read by 1", stamp: c.stamp(), used: true})
	c.end()

	r.add(version[string]{value: "read by 2", stamp: c.stamp(), used: true})

	c.begin() // frame 2
	assert.Equal(t, []string{"never bound"}, r.release(c))
	c.end()

	c.begin() // frame 3
	assert.Equal(t, []string{"read by 1"}, r.release(c))
	assert.Equal(t, 1, r.count())
	c.end()

	c.begin() // frame 4
	assert.Equal(t, []string{"read by 2"}, r.release(c))
	assert.Zero(t, r.count())
}

func TestRetiredDrain(t *testing.T) {
	c := newFrameClock(3)
	var r retired[int]
	c.begin()
	for i := range 3 {
		r.add(version[int]{value: i, stamp: c.stamp(), used: true})
	}
	require.Empty(t, r.release(c))
	assert.Equal(t, []int{0, 1, 2}, r.drain())
	assert.Zero(t, r.count())
}
