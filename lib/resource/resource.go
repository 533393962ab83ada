// Package resource owns accelerator objects on behalf of one frame.
//
// Every handle the accelerator hands out is wrapped in an owning type
// whose Close is idempotent, and the objects of a frame are gathered in
// a Set so a single deferred Teardown releases whatever was created,
// no matter where processing stopped.
package resource

import (
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/fosdem/glscale/lib/accel"
	"github.com/fosdem/glscale/lib/metrics"
	"github.com/fosdem/glscale/lib/palette"
)

var (
	ErrResourceExhausted = errors.New("accelerator resources exhausted")
	ErrTransfer          = errors.New("accelerator transfer failed")
)

const (
	kindResource = "resource"
	kindDisplay  = "display"
	kindElement  = "element"
)

// Image owns one accelerator resource
type Image struct {
	acc    accel.Accelerator
	handle accel.Resource

	Type   accel.ImageType
	Width  int
	Height int
	// Pitch is the physical row length reported by the accelerator
	Pitch int

	closed bool
}

func (i *Image) Handle() accel.Resource {
	return i.handle
}

func (i *Image) Close() error {
	if i == nil || i.closed {
		return nil
	}
	if err := i.acc.DeleteResource(i.handle); err != nil {
		return fmt.Errorf("could not delete %s resource %d: %w", i.Type, i.handle, err)
	}
	i.closed = true
	metrics.ResourcesDeleted.WithLabelValues(kindResource).Inc()
	return nil
}

// Target owns an offscreen display bound to an Image
type Target struct {
	acc    accel.Accelerator
	handle accel.Display

	Image *Image

	closed bool
}

func (t *Target) Handle() accel.Display {
	return t.handle
}

func (t *Target) Close() error {
	if t == nil || t.closed {
		return nil
	}
	if err := t.acc.CloseDisplay(t.handle); err != nil {
		return fmt.Errorf("could not close offscreen display %d: %w", t.handle, err)
	}
	t.closed = true
	metrics.ResourcesDeleted.WithLabelValues(kindDisplay).Inc()
	return nil
}

// Element owns an element composed into an offscreen target
type Element struct {
	acc    accel.Accelerator
	handle accel.Element

	closed bool
}

// OwnElement takes ownership of an element returned by ElementAdd
func OwnElement(acc accel.Accelerator, handle accel.Element) *Element {
	metrics.ResourcesCreated.WithLabelValues(kindElement).Inc()
	return &Element{acc: acc, handle: handle}
}

func (e *Element) Handle() accel.Element {
	return e.handle
}

// Close removes the element in an update of its own. The element
// stays owned until the removal has been submitted.
func (e *Element) Close() error {
	if e == nil || e.closed {
		return nil
	}

	update, err := e.acc.UpdateStart(0)
	if err != nil {
		return fmt.Errorf("could not start update to remove element %d: %w", e.handle, err)
	}
	if err := e.acc.ElementRemove(update, e.handle); err != nil {
		return errors.Join(
			fmt.Errorf("could not remove element %d: %w", e.handle, err),
			e.acc.SubmitSync(update),
		)
	}
	if err := e.acc.SubmitSync(update); err != nil {
		return fmt.Errorf("could not submit removal of element %d: %w", e.handle, err)
	}
	e.closed = true
	metrics.ResourcesDeleted.WithLabelValues(kindElement).Inc()
	return nil
}

// Set is everything one frame allocates on the accelerator
type Set struct {
	Source      *Image
	Destination *Image
	Target      *Target
	Element     *Element
}

// teardownAttempts is how often Teardown goes over objects that failed
// to go away
const teardownAttempts = 2

// Teardown removes the composed element, deletes the source, the
// destination and then closes the offscreen target. Whatever fails is
// tried again, and every failure is reported.
func (s *Set) Teardown() error {
	var errs []error
	for range teardownAttempts {
		err := s.teardownOnce()
		if err == nil {
			break
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Set) teardownOnce() error {
	// the source and the target are busy while the element is composed
	if err := s.Element.Close(); err != nil {
		return err
	}
	return errors.Join(
		s.Source.Close(),
		s.Destination.Close(),
		s.Target.Close(),
	)
}

type Manager struct {
	acc accel.Accelerator
	log *slog.Logger
}

func NewManager(acc accel.Accelerator, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{acc: acc, log: log}
}

func (m *Manager) createImage(typ accel.ImageType, width, height int) (*Image, error) {
	handle, err := m.acc.CreateResource(typ, width, height)
	if err != nil {
		return nil, fmt.Errorf("%w: could not create %s resource of %dx%d: %w", ErrResourceExhausted, typ, width, height, err)
	}
	metrics.ResourcesCreated.WithLabelValues(kindResource).Inc()

	img := &Image{
		acc:    m.acc,
		handle: handle,
		Type:   typ,
		Width:  width,
		Height: height,
	}
	img.Pitch, err = m.acc.Pitch(handle)
	if err != nil {
		return nil, errors.Join(
			fmt.Errorf("%w: could not query pitch of resource %d: %w", ErrTransfer, handle, err),
			img.Close(),
		)
	}
	return img, nil
}

// CreateDestination allocates the RGBA resource the frame is composed
// into and binds an offscreen target to it. Both end up in set, so a
// partial failure is cleaned up by set.Teardown.
func (m *Manager) CreateDestination(set *Set, width, height int) error {
	img, err := m.createImage(accel.ImageRGBA32, width, height)
	if err != nil {
		return err
	}
	set.Destination = img

	display, err := m.acc.OpenOffscreen(img.handle, accel.NoRotate)
	if err != nil {
		return fmt.Errorf("%w: could not open offscreen display: %w", ErrResourceExhausted, err)
	}
	metrics.ResourcesCreated.WithLabelValues(kindDisplay).Inc()
	set.Target = &Target{acc: m.acc, handle: display, Image: img}
	return nil
}

// CreateAndUploadSource allocates the source resource and uploads the
// whole picture in one transfer. For 8bpp sources the palette is
// attached before the resource can be used by any compose.
func (m *Manager) CreateAndUploadSource(
	set *Set,
	typ accel.ImageType,
	width, height, pitch int,
	pixels []byte,
	pal palette.ARGB,
) error {
	if typ == accel.Image8BPP && pal == nil {
		return fmt.Errorf("%w: 8bpp source without a palette", ErrTransfer)
	}

	img, err := m.createImage(typ, width, height)
	if err != nil {
		return err
	}
	set.Source = img

	err = m.acc.WriteData(img.handle, typ, pitch, pixels, image.Rect(0, 0, width, height))
	if err != nil {
		return fmt.Errorf("%w: could not upload %dx%d %s picture: %w", ErrTransfer, width, height, typ, err)
	}

	if typ == accel.Image8BPP {
		if err := m.acc.SetPalette(img.handle, pal); err != nil {
			return fmt.Errorf("%w: could not attach palette: %w", ErrTransfer, err)
		}
	}
	return nil
}

// ReadbackAndRelease copies rect of the composed destination into out,
// whose first byte is the top-left pixel of rect, and then tears the
// set down. The set is torn down even if the readback fails.
func (m *Manager) ReadbackAndRelease(set *Set, rect image.Rectangle, outPitch int, out []byte) error {
	var readErr error
	if set.Destination == nil {
		readErr = fmt.Errorf("%w: no destination to read back", ErrTransfer)
	} else if err := m.acc.ReadData(set.Destination.handle, rect, out, outPitch); err != nil {
		readErr = fmt.Errorf("%w: could not read back %v: %w", ErrTransfer, rect, err)
	}

	if err := set.Teardown(); err != nil {
		m.log.Warn(fmt.Sprintf("teardown failed: %s", err), slog.String("module", "resource"))
		return errors.Join(readErr, err)
	}
	return readErr
}
