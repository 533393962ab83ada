package compositor

import (
	"errors"
	"fmt"
	"image"

	"github.com/fosdem/glscale/lib/accel"
	"github.com/fosdem/glscale/lib/resource"
)

var ErrCompose = errors.New("compose failed")

// Alpha is how the scaled element is blended: fully opaque, with the
// source alpha channel (if any) deciding translucency.
var Alpha = accel.Alpha{
	Flags:   accel.AlphaFromSource | accel.AlphaMix,
	Opacity: 255,
}

// Compose places the whole of set.Source into set.Target at dst and
// blocks until the accelerator has finished. The scale factor follows
// from the source rectangle, expressed in 16.16, and dst differing in
// size. The element is recorded in set and removed by set.Teardown,
// after the result has been read back.
func Compose(acc accel.Accelerator, set *resource.Set, dst image.Rectangle) error {
	if set.Target == nil || set.Source == nil {
		return fmt.Errorf("%w: missing target or source", ErrCompose)
	}
	if set.Element != nil {
		return fmt.Errorf("%w: set already carries element %d", ErrCompose, set.Element.Handle())
	}
	src := set.Source
	srcRect := accel.ToFixed(image.Rect(0, 0, src.Width, src.Height))

	update, err := acc.UpdateStart(0)
	if err != nil {
		return fmt.Errorf("%w: could not start update: %w", ErrCompose, err)
	}

	el, err := acc.ElementAdd(update, set.Target.Handle(), 0, dst, src.Handle(), srcRect, Alpha, accel.NoRotate)
	if err != nil {
		// the update has to be consumed even though it carries nothing
		return errors.Join(
			fmt.Errorf("%w: could not add element: %w", ErrCompose, err),
			acc.SubmitSync(update),
		)
	}
	set.Element = resource.OwnElement(acc, el)

	if err := acc.SubmitSync(update); err != nil {
		return fmt.Errorf("%w: could not submit update: %w", ErrCompose, err)
	}
	return nil
}
