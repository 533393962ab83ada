package resource

import (
	"image"
	"testing"

	"github.com/fosdem/glscale/lib/accel"
	"github.com/fosdem/glscale/lib/accel/memaccel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDestinationAndTeardown(t *testing.T) {
	acc := memaccel.New()
	m := NewManager(acc, nil)

	set := &Set{}
	require.NoError(t, m.CreateDestination(set, 6, 4))
	require.NotNil(t, set.Destination)
	require.NotNil(t, set.Target)
	assert.Equal(t, 32, set.Destination.Pitch)
	assert.Same(t, set.Destination, set.Target.Image)

	live := acc.Live()
	assert.Equal(t, 1, live.Resources)
	assert.Equal(t, 1, live.Displays)

	require.NoError(t, set.Teardown())
	require.NoError(t, set.Teardown())
	assert.True(t, acc.Live().Zero())
	assert.Equal(t, 1, acc.Calls(memaccel.OpDeleteResource))
	assert.Equal(t, 1, acc.Calls(memaccel.OpCloseDisplay))
}

func TestTeardownOfEmptySet(t *testing.T) {
	require.NoError(t, (&Set{}).Teardown())
}

func TestOffscreenFailureKeepsDestinationInSet(t *testing.T) {
	acc := memaccel.New()
	m := NewManager(acc, nil)
	acc.InjectFailure(memaccel.OpOpenOffscreen, 1)

	set := &Set{}
	err := m.CreateDestination(set, 4, 4)
	require.ErrorIs(t, err, ErrResourceExhausted)
	require.ErrorIs(t, err, accel.ErrNoMemory)
	require.NotNil(t, set.Destination)
	assert.Nil(t, set.Target)

	require.NoError(t, set.Teardown())
	assert.True(t, acc.Live().Zero())
}

func TestUploadSource(t *testing.T) {
	acc := memaccel.New()
	m := NewManager(acc, nil)

	set := &Set{}
	err := m.CreateAndUploadSource(set, accel.Image8BPP, 2, 2, 4, make([]byte, 8), nil)
	require.ErrorIs(t, err, ErrTransfer)
	assert.Nil(t, set.Source)
	assert.Zero(t, acc.TotalCalls())

	require.NoError(t, m.CreateAndUploadSource(set, accel.Image8BPP, 2, 2, 4, make([]byte, 8), []uint32{0xffffffff}))
	assert.Equal(t, 1, acc.Calls(memaccel.OpWriteData))
	assert.Equal(t, 1, acc.Calls(memaccel.OpSetPalette))
	require.NoError(t, set.Teardown())
	assert.True(t, acc.Live().Zero())
}

func TestUploadFailureLeavesSourceForTeardown(t *testing.T) {
	acc := memaccel.New()
	m := NewManager(acc, nil)
	acc.InjectFailure(memaccel.OpWriteData, 1)

	set := &Set{}
	err := m.CreateAndUploadSource(set, accel.ImageRGBA32, 2, 2, 8, make([]byte, 16), nil)
	require.ErrorIs(t, err, ErrTransfer)
	require.ErrorIs(t, err, memaccel.ErrInjected)
	require.NotNil(t, set.Source)

	require.NoError(t, set.Teardown())
	assert.True(t, acc.Live().Zero())
}

func TestReadbackTearsDownOnFailure(t *testing.T) {
	acc := memaccel.New()
	m := NewManager(acc, nil)

	set := &Set{}
	require.NoError(t, m.CreateDestination(set, 2, 2))
	acc.InjectFailure(memaccel.OpReadData, 1)

	out := make([]byte, 16)
	err := m.ReadbackAndRelease(set, image.Rect(0, 0, 2, 2), 8, out)
	require.ErrorIs(t, err, ErrTransfer)
	assert.True(t, acc.Live().Zero())
}

func TestElementRemovedInOwnUpdate(t *testing.T) {
	acc := memaccel.New()
	m := NewManager(acc, nil)

	set := &Set{}
	require.NoError(t, m.CreateDestination(set, 2, 2))
	require.NoError(t, m.CreateAndUploadSource(set, accel.ImageRGBA32, 2, 2, 8, make([]byte, 16), nil))

	u, err := acc.UpdateStart(0)
	require.NoError(t, err)
	el, err := acc.ElementAdd(u, set.Target.Handle(), 0, image.Rect(0, 0, 2, 2), set.Source.Handle(),
		accel.ToFixed(image.Rect(0, 0, 2, 2)), accel.Alpha{Opacity: 255}, accel.NoRotate)
	require.NoError(t, err)
	require.NoError(t, acc.SubmitSync(u))
	set.Element = OwnElement(acc, el)

	require.NoError(t, set.Teardown())
	assert.True(t, acc.Live().Zero())
	assert.Equal(t, 2, acc.Calls(memaccel.OpUpdateStart))
	assert.Equal(t, 1, acc.Calls(memaccel.OpElementRemove))
}

func composedSet(t *testing.T, acc *memaccel.Accel) *Set {
	m := NewManager(acc, nil)
	set := &Set{}
	require.NoError(t, m.CreateDestination(set, 2, 2))
	require.NoError(t, m.CreateAndUploadSource(set, accel.ImageRGBA32, 2, 2, 8, make([]byte, 16), nil))

	u, err := acc.UpdateStart(0)
	require.NoError(t, err)
	el, err := acc.ElementAdd(u, set.Target.Handle(), 0, image.Rect(0, 0, 2, 2), set.Source.Handle(),
		accel.ToFixed(image.Rect(0, 0, 2, 2)), accel.Alpha{Opacity: 255}, accel.NoRotate)
	require.NoError(t, err)
	require.NoError(t, acc.SubmitSync(u))
	set.Element = OwnElement(acc, el)
	return set
}

func TestTeardownRetriesFailedSteps(t *testing.T) {
	for _, tc := range []struct {
		name string
		op   memaccel.Op
		nth  int
	}{
		{"removal update", memaccel.OpUpdateStart, 1},
		{"element remove", memaccel.OpElementRemove, 1},
		{"removal submit", memaccel.OpSubmitSync, 1},
		{"source delete", memaccel.OpDeleteResource, 1},
		{"destination delete", memaccel.OpDeleteResource, 2},
		{"display close", memaccel.OpCloseDisplay, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			acc := memaccel.New()
			set := composedSet(t, acc)

			acc.InjectFailure(tc.op, tc.nth)
			err := set.Teardown()
			require.ErrorIs(t, err, memaccel.ErrInjected)

			live := acc.Live()
			require.True(t, live.Zero(), "accelerator objects left: %+v", live)
			require.NoError(t, set.Teardown())
		})
	}
}

func TestTeardownGivesUpAfterRetry(t *testing.T) {
	acc := memaccel.New()
	m := NewManager(acc, nil)
	set := &Set{}
	require.NoError(t, m.CreateDestination(set, 2, 2))

	acc.InjectFailure(memaccel.OpCloseDisplay, 1)
	acc.InjectFailure(memaccel.OpCloseDisplay, 2)
	require.ErrorIs(t, set.Teardown(), memaccel.ErrInjected)
	assert.Equal(t, 1, acc.Live().Displays)

	// a later teardown still owns the display
	require.NoError(t, set.Teardown())
	assert.True(t, acc.Live().Zero())
}
