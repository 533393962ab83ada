package compositor

import (
	"image"
	"testing"

	"github.com/fosdem/glscale/lib/accel"
	"github.com/fosdem/glscale/lib/accel/memaccel"
	"github.com/fosdem/glscale/lib/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prepared(t *testing.T, acc *memaccel.Accel) *resource.Set {
	m := resource.NewManager(acc, nil)
	set := &resource.Set{}
	t.Cleanup(func() { _ = set.Teardown() })

	require.NoError(t, m.CreateDestination(set, 4, 4))
	px := make([]byte, 2*2*4)
	for i := range px {
		px[i] = 0xff
	}
	require.NoError(t, m.CreateAndUploadSource(set, accel.ImageRGBA32, 2, 2, 8, px, nil))
	return set
}

func TestCompose(t *testing.T) {
	acc := memaccel.New()
	set := prepared(t, acc)

	require.NoError(t, Compose(acc, set, image.Rect(1, 1, 3, 3)))
	require.NotNil(t, set.Element)

	out := make([]byte, 16*4)
	require.NoError(t, acc.ReadData(set.Destination.Handle(), image.Rect(0, 0, 4, 4), out, 16))
	assert.Equal(t, []byte{0, 0, 0, 0}, out[0:4])
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, out[16+4:16+8])

	require.ErrorIs(t, Compose(acc, set, image.Rect(0, 0, 4, 4)), ErrCompose)

	require.NoError(t, set.Teardown())
	assert.True(t, acc.Live().Zero())
}

func TestComposeFailures(t *testing.T) {
	for _, op := range []memaccel.Op{memaccel.OpUpdateStart, memaccel.OpElementAdd, memaccel.OpSubmitSync} {
		t.Run(op.String(), func(t *testing.T) {
			acc := memaccel.New()
			set := prepared(t, acc)
			acc.InjectFailure(op, 1)

			err := Compose(acc, set, image.Rect(0, 0, 4, 4))
			require.ErrorIs(t, err, ErrCompose)
			assert.Zero(t, acc.Live().Updates)

			_ = set.Teardown()
			assert.True(t, acc.Live().Zero())
		})
	}
}

func TestComposeNeedsTargetAndSource(t *testing.T) {
	acc := memaccel.New()
	require.ErrorIs(t, Compose(acc, &resource.Set{}, image.Rect(0, 0, 1, 1)), ErrCompose)
	assert.Zero(t, acc.TotalCalls())
}
