// Package memaccel emulates the compositing accelerator in host memory.
//
// It keeps exact accounts of every call, can be told to fail any call
// and checks handle lifetimes strictly, which makes it the backend of
// choice for tests and for hosts without a GPU.
package memaccel

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"slices"
	"sync"

	"github.com/fosdem/glscale/lib/accel"
	xdraw "golang.org/x/image/draw"
)

type Op int

const (
	OpCreateResource Op = iota
	OpDeleteResource
	OpSetPalette
	OpWriteData
	OpReadData
	OpOpenOffscreen
	OpCloseDisplay
	OpUpdateStart
	OpElementAdd
	OpElementRemove
	OpSubmitSync
	numOps
)

var opNames = [numOps]string{
	"create_resource", "delete_resource", "set_palette", "write_data", "read_data",
	"open_offscreen", "close_display", "update_start", "element_add", "element_remove",
	"submit_sync",
}

func (o Op) String() string {
	if o >= 0 && o < numOps {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", int(o))
}

var (
	ErrInjected    = errors.New("injected failure")
	ErrInUse       = errors.New("resource still referenced")
	ErrBadType     = errors.New("image type does not match resource")
	ErrShortBuffer = errors.New("host buffer too small for rectangle")
)

type resource struct {
	typ     accel.ImageType
	width   int
	height  int
	pitch   int
	pix     []byte
	palette color.Palette
	display accel.Display
}

type element struct {
	display accel.Display
	layer   int
	dst     image.Rectangle
	src     accel.Resource
	srcRect accel.FixedRect
	alpha   accel.Alpha
}

type update struct {
	adds    []accel.Element
	removes []accel.Element
}

type Accel struct {
	// PitchAlign rounds the physical row length of every resource up to
	// a multiple of this many bytes.
	PitchAlign int
	// MaxResources limits how many resources can be alive at once; 0 means no limit
	MaxResources int
	// Interpolator resamples elements whose size differs from their source
	Interpolator xdraw.Interpolator

	mu sync.Mutex

	lastID    uint32
	resources map[accel.Resource]*resource
	displays  map[accel.Display]accel.Resource
	elements  map[accel.Element]*element
	pending   map[accel.Element]*element
	updates   map[accel.Update]*update

	calls  [numOps]int
	failAt [numOps]map[int]bool
	inits  int
	active bool
}

var _ accel.Backend = (*Accel)(nil)

func New() *Accel {
	return &Accel{
		PitchAlign:   16,
		Interpolator: xdraw.NearestNeighbor,
		resources:    make(map[accel.Resource]*resource),
		displays:     make(map[accel.Display]accel.Resource),
		elements:     make(map[accel.Element]*element),
		pending:      make(map[accel.Element]*element),
		updates:      make(map[accel.Update]*update),
	}
}

func (a *Accel) Name() string {
	return "mem"
}

func (a *Accel) Init() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inits++
	a.active = true
	return nil
}

func (a *Accel) Deinit() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = false
	return nil
}

// InjectFailure makes the nth call of op from now on fail. Several
// failures can be pending for the same op.
func (a *Accel) InjectFailure(op Op, nth int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failAt[op] == nil {
		a.failAt[op] = make(map[int]bool)
	}
	a.failAt[op][a.calls[op]+nth] = true
}

// Calls reports how often op has been invoked, failed calls included
func (a *Accel) Calls(op Op) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[op]
}

// TotalCalls is the number of accelerator calls of any kind
func (a *Accel) TotalCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.calls {
		n += c
	}
	return n
}

type Live struct {
	Resources int
	Displays  int
	Elements  int
	Updates   int
}

func (l Live) Zero() bool {
	return l == Live{}
}

// Live counts the objects that have been created and not yet destroyed
func (a *Accel) Live() Live {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Live{
		Resources: len(a.resources),
		Displays:  len(a.displays),
		Elements:  len(a.elements) + len(a.pending),
		Updates:   len(a.updates),
	}
}

func (a *Accel) Inits() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inits
}

func (a *Accel) enter(op Op) error {
	a.calls[op]++
	if a.failAt[op][a.calls[op]] {
		delete(a.failAt[op], a.calls[op])
		if op == OpCreateResource || op == OpOpenOffscreen || op == OpUpdateStart {
			return fmt.Errorf("%s: %w: %w", op, ErrInjected, accel.ErrNoMemory)
		}
		return fmt.Errorf("%s: %w", op, ErrInjected)
	}
	return nil
}

func (a *Accel) nextID() uint32 {
	a.lastID++
	return a.lastID
}

func (a *Accel) CreateResource(typ accel.ImageType, width, height int) (accel.Resource, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter(OpCreateResource); err != nil {
		return accel.NoHandle, err
	}

	bpp := typ.BytesPerPixel()
	if bpp == 0 || width <= 0 || height <= 0 {
		return accel.NoHandle, fmt.Errorf("cannot create %s resource of %dx%d", typ, width, height)
	}
	if a.MaxResources > 0 && len(a.resources) >= a.MaxResources {
		return accel.NoHandle, accel.ErrNoMemory
	}

	pitch := width * bpp
	if a.PitchAlign > 1 {
		pitch = (pitch + a.PitchAlign - 1) / a.PitchAlign * a.PitchAlign
	}
	r := &resource{
		typ:    typ,
		width:  width,
		height: height,
		pitch:  pitch,
		pix:    make([]byte, pitch*height),
	}
	id := accel.Resource(a.nextID())
	a.resources[id] = r
	return id, nil
}

func (a *Accel) DeleteResource(res accel.Resource) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter(OpDeleteResource); err != nil {
		return err
	}
	if _, ok := a.resources[res]; !ok {
		return fmt.Errorf("delete resource %d: %w", res, accel.ErrInvalidHandle)
	}
	for _, el := range a.elements {
		if el.src == res {
			return fmt.Errorf("delete resource %d: %w", res, ErrInUse)
		}
	}
	delete(a.resources, res)
	return nil
}

func (a *Accel) Pitch(res accel.Resource) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.resources[res]
	if !ok {
		return 0, accel.ErrInvalidHandle
	}
	return r.pitch, nil
}

func (a *Accel) SetPalette(res accel.Resource, entries []uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter(OpSetPalette); err != nil {
		return err
	}
	r, ok := a.resources[res]
	if !ok {
		return accel.ErrInvalidHandle
	}
	if r.typ != accel.Image8BPP {
		return fmt.Errorf("palette on %s resource: %w", r.typ, ErrBadType)
	}
	if len(entries) > 256 {
		return fmt.Errorf("palette of %d entries", len(entries))
	}
	// indices beyond the supplied entries read as transparent black
	p := make(color.Palette, 256)
	for i := range p {
		p[i] = color.NRGBA{}
	}
	for i, v := range entries {
		p[i] = color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: uint8(v >> 24)}
	}
	r.palette = p
	return nil
}

func checkRect(r *resource, rect image.Rectangle) error {
	if rect.Empty() || !rect.In(image.Rect(0, 0, r.width, r.height)) {
		return fmt.Errorf("%v in %dx%d: %w", rect, r.width, r.height, accel.ErrBadRect)
	}
	return nil
}

func (a *Accel) WriteData(res accel.Resource, typ accel.ImageType, srcPitch int, data []byte, rect image.Rectangle) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter(OpWriteData); err != nil {
		return err
	}
	r, ok := a.resources[res]
	if !ok {
		return accel.ErrInvalidHandle
	}
	if typ != r.typ {
		return fmt.Errorf("write %s into %s: %w", typ, r.typ, ErrBadType)
	}
	if err := checkRect(r, rect); err != nil {
		return err
	}
	rowLen := rect.Dx() * r.typ.BytesPerPixel()
	if srcPitch < rowLen || len(data) < (rect.Dy()-1)*srcPitch+rowLen {
		return ErrShortBuffer
	}
	for y := 0; y < rect.Dy(); y++ {
		dstOff := (rect.Min.Y+y)*r.pitch + rect.Min.X*r.typ.BytesPerPixel()
		copy(r.pix[dstOff:dstOff+rowLen], data[y*srcPitch:y*srcPitch+rowLen])
	}
	return nil
}

func (a *Accel) ReadData(res accel.Resource, rect image.Rectangle, dst []byte, dstPitch int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter(OpReadData); err != nil {
		return err
	}
	r, ok := a.resources[res]
	if !ok {
		return accel.ErrInvalidHandle
	}
	if err := checkRect(r, rect); err != nil {
		return err
	}
	rowLen := rect.Dx() * r.typ.BytesPerPixel()
	if dstPitch < rowLen || len(dst) < (rect.Dy()-1)*dstPitch+rowLen {
		return ErrShortBuffer
	}
	for y := 0; y < rect.Dy(); y++ {
		srcOff := (rect.Min.Y+y)*r.pitch + rect.Min.X*r.typ.BytesPerPixel()
		copy(dst[y*dstPitch:y*dstPitch+rowLen], r.pix[srcOff:srcOff+rowLen])
	}
	return nil
}

func (a *Accel) OpenOffscreen(res accel.Resource, t accel.Transform) (accel.Display, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter(OpOpenOffscreen); err != nil {
		return accel.NoHandle, err
	}
	r, ok := a.resources[res]
	if !ok {
		return accel.NoHandle, accel.ErrInvalidHandle
	}
	if r.typ != accel.ImageRGBA32 {
		return accel.NoHandle, fmt.Errorf("offscreen display on %s resource: %w", r.typ, ErrBadType)
	}
	if t != accel.NoRotate {
		return accel.NoHandle, fmt.Errorf("offscreen transform %d is not supported", t)
	}
	if r.display != accel.NoHandle {
		return accel.NoHandle, fmt.Errorf("resource %d already backs display %d: %w", res, r.display, ErrInUse)
	}
	id := accel.Display(a.nextID())
	a.displays[id] = res
	r.display = id
	clear(r.pix)
	return id, nil
}

func (a *Accel) CloseDisplay(d accel.Display) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter(OpCloseDisplay); err != nil {
		return err
	}
	res, ok := a.displays[d]
	if !ok {
		return accel.ErrInvalidHandle
	}
	for _, el := range a.elements {
		if el.display == d {
			return fmt.Errorf("close display %d: %w", d, ErrInUse)
		}
	}
	if r, ok := a.resources[res]; ok {
		r.display = accel.NoHandle
	}
	delete(a.displays, d)
	return nil
}

func (a *Accel) UpdateStart(priority int) (accel.Update, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter(OpUpdateStart); err != nil {
		return accel.NoHandle, err
	}
	id := accel.Update(a.nextID())
	a.updates[id] = &update{}
	return id, nil
}

func (a *Accel) ElementAdd(
	u accel.Update,
	d accel.Display,
	layer int,
	dst image.Rectangle,
	src accel.Resource,
	srcRect accel.FixedRect,
	alpha accel.Alpha,
	t accel.Transform,
) (accel.Element, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter(OpElementAdd); err != nil {
		return accel.NoHandle, err
	}
	upd, ok := a.updates[u]
	if !ok {
		return accel.NoHandle, fmt.Errorf("update %d: %w", u, accel.ErrInvalidHandle)
	}
	target, ok := a.displays[d]
	if !ok {
		return accel.NoHandle, fmt.Errorf("display %d: %w", d, accel.ErrInvalidHandle)
	}
	r, ok := a.resources[src]
	if !ok {
		return accel.NoHandle, fmt.Errorf("resource %d: %w", src, accel.ErrInvalidHandle)
	}
	if t != accel.NoRotate {
		return accel.NoHandle, fmt.Errorf("element transform %d is not supported", t)
	}
	if err := checkRect(a.resources[target], dst); err != nil {
		return accel.NoHandle, err
	}
	sx, sy, sw, sh := srcRect.Float()
	if sx < 0 || sy < 0 || sw <= 0 || sh <= 0 || sx+sw > float32(r.width) || sy+sh > float32(r.height) {
		return accel.NoHandle, fmt.Errorf("source %v of %dx%d: %w", srcRect, r.width, r.height, accel.ErrBadRect)
	}

	id := accel.Element(a.nextID())
	a.pending[id] = &element{
		display: d,
		layer:   layer,
		dst:     dst,
		src:     src,
		srcRect: srcRect,
		alpha:   alpha,
	}
	upd.adds = append(upd.adds, id)
	return id, nil
}

func (a *Accel) ElementRemove(u accel.Update, e accel.Element) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter(OpElementRemove); err != nil {
		return err
	}
	upd, ok := a.updates[u]
	if !ok {
		return fmt.Errorf("update %d: %w", u, accel.ErrInvalidHandle)
	}
	if _, ok := a.elements[e]; !ok {
		if _, ok := a.pending[e]; !ok {
			return fmt.Errorf("element %d: %w", e, accel.ErrInvalidHandle)
		}
	}
	upd.removes = append(upd.removes, e)
	return nil
}

func (a *Accel) SubmitSync(u accel.Update) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	upd, ok := a.updates[u]
	if !ok {
		a.calls[OpSubmitSync]++
		return fmt.Errorf("update %d: %w", u, accel.ErrInvalidHandle)
	}
	// a submitted update is consumed even when the submission fails
	delete(a.updates, u)
	if err := a.enter(OpSubmitSync); err != nil {
		for _, id := range upd.adds {
			delete(a.pending, id)
		}
		return err
	}

	dirty := make(map[accel.Display]bool)
	for _, id := range upd.adds {
		el, ok := a.pending[id]
		if !ok {
			continue
		}
		delete(a.pending, id)
		a.elements[id] = el
		dirty[el.display] = true
	}
	for _, id := range upd.removes {
		if el, ok := a.elements[id]; ok {
			dirty[el.display] = true
		}
		delete(a.elements, id)
		delete(a.pending, id)
	}
	for d := range dirty {
		if err := a.compose(d); err != nil {
			return err
		}
	}
	return nil
}

// compose redraws a display from scratch with every active element on it
func (a *Accel) compose(d accel.Display) error {
	target, ok := a.resources[a.displays[d]]
	if !ok {
		return fmt.Errorf("display %d lost its resource: %w", d, accel.ErrInvalidHandle)
	}
	clear(target.pix)
	dst := &image.NRGBA{
		Pix:    target.pix,
		Stride: target.pitch,
		Rect:   image.Rect(0, 0, target.width, target.height),
	}

	var els []*element
	for _, el := range a.elements {
		if el.display == d {
			els = append(els, el)
		}
	}
	slices.SortStableFunc(els, func(x, y *element) int { return x.layer - y.layer })

	for _, el := range els {
		r, ok := a.resources[el.src]
		if !ok {
			return fmt.Errorf("element source %d: %w", el.src, accel.ErrInvalidHandle)
		}
		src := r.image(el.alpha.Flags&accel.AlphaFromSource != 0)

		x, y, w, h := el.srcRect.Float()
		sr := image.Rect(round(x), round(y), round(x+w), round(y+h))

		var opts *xdraw.Options
		if el.alpha.Opacity < 255 {
			opts = &xdraw.Options{SrcMask: image.NewUniform(color.Alpha{A: el.alpha.Opacity})}
		}
		op := xdraw.Over
		if el.alpha.Flags&accel.AlphaMix == 0 && opts == nil {
			op = xdraw.Src
		}
		a.Interpolator.Scale(dst, el.dst, src, sr, op, opts)
	}
	return nil
}

func (r *resource) image(alphaFromSource bool) image.Image {
	bounds := image.Rect(0, 0, r.width, r.height)
	var img image.Image
	switch r.typ {
	case accel.Image8BPP:
		p := r.palette
		if p == nil {
			p = make(color.Palette, 256)
			for i := range p {
				p[i] = color.NRGBA{}
			}
		}
		img = &image.Paletted{Pix: r.pix, Stride: r.pitch, Rect: bounds, Palette: p}
	case accel.ImageRGBX32:
		return opaque{&image.NRGBA{Pix: r.pix, Stride: r.pitch, Rect: bounds}}
	default:
		img = &image.NRGBA{Pix: r.pix, Stride: r.pitch, Rect: bounds}
	}
	if !alphaFromSource {
		return opaque{img}
	}
	return img
}

// opaque presents an image with every alpha forced to fully opaque
type opaque struct {
	image.Image
}

func (o opaque) ColorModel() color.Model {
	return color.NRGBAModel
}

func (o opaque) At(x, y int) color.Color {
	c := color.NRGBAModel.Convert(o.Image.At(x, y)).(color.NRGBA)
	c.A = 255
	return c
}

func round(f float32) int {
	if f < 0 {
		return int(f - 0.5)
	}
	return int(f + 0.5)
}
