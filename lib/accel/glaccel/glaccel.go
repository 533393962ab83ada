// Package glaccel implements the compositing accelerator with OpenGL:
// resources are textures, offscreen displays are framebuffers bound to
// them and every element is one textured quad.
//
// GL is bound to the thread that made its context current, so every
// method including Init must be called from one locked OS thread.
package glaccel

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"slices"

	"github.com/fosdem/glscale/lib/accel"
	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
)

var ErrNotInitialised = errors.New("gl accelerator is not initialised")

type Options struct {
	Logger *slog.Logger
	// Debug requests a debug context and logs the context limits
	Debug  bool
}

type texture struct {
	id      uint32
	typ     accel.ImageType
	width   int
	height  int
	palette uint32
	display accel.Display
}

type framebuffer struct {
	id  uint32
	res accel.Resource
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
	log   *slog.Logger
	debug bool

	window  *glfw.Window
	program *program
	vao     uint32
	vbo     uint32

	lastID   uint32
	textures map[accel.Resource]*texture
	displays map[accel.Display]*framebuffer
	elements map[accel.Element]*element
	pending  map[accel.Element]*element
	updates  map[accel.Update]*update
}

var _ accel.Backend = (*Accel)(nil)

func New(opts Options) *Accel {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Accel{
		log:   opts.Logger.With(slog.String("module", "glaccel")),
		debug: opts.Debug,
	}
}

func (a *Accel) Name() string {
	return "gl"
}

// Init creates a hidden window to own the GL context and builds the
// compositing program
func (a *Accel) Init() error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("failed to initialize glfw: %w", err)
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.False)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	if a.debug {
		glfw.WindowHint(glfw.OpenGLDebugContext, glfw.True)
	}
	window, err := glfw.CreateWindow(1, 1, "glscale", nil, nil)
	if err != nil {
		glfw.Terminate()
		return fmt.Errorf("could not create offscreen context: %w", err)
	}
	window.MakeContextCurrent()
	a.window = window

	if err := gl.Init(); err != nil {
		a.teardownWindow()
		return fmt.Errorf("could not initialise OpenGL context: %w", err)
	}

	vendor := gl.GoStr(gl.GetString(gl.VENDOR))
	renderer := gl.GoStr(gl.GetString(gl.RENDERER))
	version := gl.GoStr(gl.GetString(gl.VERSION))
	a.log.Info(fmt.Sprintf("OpenGL version %s / %s / %s", vendor, renderer, version))
	if a.debug {
		var maxTexture, maxRenderbuffer int32
		gl.GetIntegerv(gl.MAX_TEXTURE_SIZE, &maxTexture)
		gl.GetIntegerv(gl.MAX_RENDERBUFFER_SIZE, &maxRenderbuffer)
		a.log.Info(fmt.Sprintf("max texture size %d, max renderbuffer size %d", maxTexture, maxRenderbuffer))
	}

	a.program, err = newProgram()
	if err != nil {
		a.teardownWindow()
		return err
	}
	a.setupQuad()

	a.textures = make(map[accel.Resource]*texture)
	a.displays = make(map[accel.Display]*framebuffer)
	a.elements = make(map[accel.Element]*element)
	a.pending = make(map[accel.Element]*element)
	a.updates = make(map[accel.Update]*update)
	return checkError("init")
}

func (a *Accel) setupQuad() {
	quad := []float32{
		0, 0,
		1, 0,
		0, 1,
		1, 1,
	}
	gl.GenVertexArrays(1, &a.vao)
	gl.BindVertexArray(a.vao)
	gl.GenBuffers(1, &a.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, a.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(quad)*4, gl.Ptr(quad), gl.STATIC_DRAW)

	gl.EnableVertexAttribArray(a.program.position)
	gl.VertexAttribPointerWithOffset(a.program.position, 2, gl.FLOAT, false, 2*4, 0)
}

func (a *Accel) Deinit() error {
	if a.window == nil {
		return nil
	}
	for id, fb := range a.displays {
		gl.DeleteFramebuffers(1, &fb.id)
		delete(a.displays, id)
	}
	for id, t := range a.textures {
		a.deleteTexture(t)
		delete(a.textures, id)
	}
	gl.DeleteBuffers(1, &a.vbo)
	gl.DeleteVertexArrays(1, &a.vao)
	gl.DeleteProgram(a.program.id)
	a.teardownWindow()
	return nil
}

func (a *Accel) teardownWindow() {
	a.window.Destroy()
	a.window = nil
	glfw.Terminate()
}

// checkError drains the GL error queue
func checkError(op string) error {
	var errs []error
	for code := gl.GetError(); code != gl.NO_ERROR; code = gl.GetError() {
		switch code {
		case gl.OUT_OF_MEMORY:
			errs = append(errs, fmt.Errorf("%s: %w", op, accel.ErrNoMemory))
		case gl.INVALID_VALUE:
			errs = append(errs, fmt.Errorf("%s: %w", op, accel.ErrBadRect))
		default:
			errs = append(errs, fmt.Errorf("%s: gl error 0x%x", op, code))
		}
	}
	return errors.Join(errs...)
}

func (a *Accel) nextID() uint32 {
	a.lastID++
	return a.lastID
}

func glFormat(typ accel.ImageType) (internal int32, format uint32) {
	if typ == accel.Image8BPP {
		return gl.R8, gl.RED
	}
	return gl.RGBA8, gl.RGBA
}

func (a *Accel) CreateResource(typ accel.ImageType, width, height int) (accel.Resource, error) {
	if a.window == nil {
		return accel.NoHandle, ErrNotInitialised
	}
	if typ.BytesPerPixel() == 0 || width <= 0 || height <= 0 {
		return accel.NoHandle, fmt.Errorf("cannot create %s resource of %dx%d", typ, width, height)
	}

	filter := int32(gl.LINEAR)
	if typ == accel.Image8BPP {
		// indices must not be interpolated
		filter = gl.NEAREST
	}
	internal, format := glFormat(typ)

	var id uint32
	gl.GenTextures(1, &id)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, id)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, filter)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, filter)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TexImage2D(gl.TEXTURE_2D, 0, internal, int32(width), int32(height), 0, format, gl.UNSIGNED_BYTE, gl.Ptr(nil))
	if err := checkError("create resource"); err != nil {
		gl.DeleteTextures(1, &id)
		return accel.NoHandle, err
	}

	res := accel.Resource(a.nextID())
	a.textures[res] = &texture{id: id, typ: typ, width: width, height: height}
	return res, nil
}

func (a *Accel) deleteTexture(t *texture) {
	gl.DeleteTextures(1, &t.id)
	if t.palette != 0 {
		gl.DeleteTextures(1, &t.palette)
	}
}

func (a *Accel) DeleteResource(res accel.Resource) error {
	t, ok := a.textures[res]
	if !ok {
		return fmt.Errorf("delete resource %d: %w", res, accel.ErrInvalidHandle)
	}
	for _, el := range a.elements {
		if el.src == res {
			return fmt.Errorf("delete resource %d: still referenced by an element", res)
		}
	}
	a.deleteTexture(t)
	delete(a.textures, res)
	return checkError("delete resource")
}

// Pitch reports rows padded to GL's default unpack alignment
func (a *Accel) Pitch(res accel.Resource) (int, error) {
	t, ok := a.textures[res]
	if !ok {
		return 0, accel.ErrInvalidHandle
	}
	return (t.width*t.typ.BytesPerPixel() + 3) &^ 3, nil
}

func (a *Accel) SetPalette(res accel.Resource, entries []uint32) error {
	t, ok := a.textures[res]
	if !ok {
		return accel.ErrInvalidHandle
	}
	if t.typ != accel.Image8BPP {
		return fmt.Errorf("palette on %s resource", t.typ)
	}
	if len(entries) > 256 {
		return fmt.Errorf("palette of %d entries", len(entries))
	}

	rgba := make([]byte, 256*4)
	for i, v := range entries {
		rgba[i*4+0] = uint8(v >> 16)
		rgba[i*4+1] = uint8(v >> 8)
		rgba[i*4+2] = uint8(v)
		rgba[i*4+3] = uint8(v >> 24)
	}

	if t.palette == 0 {
		gl.GenTextures(1, &t.palette)
	}
	gl.ActiveTexture(gl.TEXTURE1)
	gl.BindTexture(gl.TEXTURE_2D, t.palette)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, 256, 1, 0, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(rgba))
	return checkError("set palette")
}

func checkRect(t *texture, rect image.Rectangle) error {
	if rect.Empty() || !rect.In(image.Rect(0, 0, t.width, t.height)) {
		return fmt.Errorf("%v in %dx%d: %w", rect, t.width, t.height, accel.ErrBadRect)
	}
	return nil
}

func (a *Accel) WriteData(res accel.Resource, typ accel.ImageType, srcPitch int, data []byte, rect image.Rectangle) error {
	t, ok := a.textures[res]
	if !ok {
		return accel.ErrInvalidHandle
	}
	if typ != t.typ {
		return fmt.Errorf("write %s into %s resource", typ, t.typ)
	}
	if err := checkRect(t, rect); err != nil {
		return err
	}
	bpp := typ.BytesPerPixel()
	rowLen := rect.Dx() * bpp
	if srcPitch%bpp != 0 || srcPitch < rowLen || len(data) < (rect.Dy()-1)*srcPitch+rowLen {
		return fmt.Errorf("%d bytes with pitch %d do not cover %v", len(data), srcPitch, rect)
	}

	_, format := glFormat(typ)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, t.id)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.PixelStorei(gl.UNPACK_ROW_LENGTH, int32(srcPitch/bpp))
	gl.TexSubImage2D(
		gl.TEXTURE_2D,
		0, int32(rect.Min.X), int32(rect.Min.Y),
		int32(rect.Dx()), int32(rect.Dy()),
		format, gl.UNSIGNED_BYTE, gl.Ptr(data),
	)
	gl.PixelStorei(gl.UNPACK_ROW_LENGTH, 0)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 4)
	return checkError("write data")
}

// ReadData reads from the framebuffer of the resource, which holds
// premultiplied colour, and hands out straight alpha like the other
// backends.
func (a *Accel) ReadData(res accel.Resource, rect image.Rectangle, dst []byte, dstPitch int) error {
	t, ok := a.textures[res]
	if !ok {
		return accel.ErrInvalidHandle
	}
	if t.typ != accel.ImageRGBA32 || t.display == accel.NoHandle {
		return fmt.Errorf("can only read back rgba resources bound to a display, not %s", t.typ)
	}
	if err := checkRect(t, rect); err != nil {
		return err
	}
	rowLen := rect.Dx() * 4
	if dstPitch%4 != 0 || dstPitch < rowLen || len(dst) < (rect.Dy()-1)*dstPitch+rowLen {
		return fmt.Errorf("%d bytes with pitch %d cannot hold %v", len(dst), dstPitch, rect)
	}

	gl.BindFramebuffer(gl.FRAMEBUFFER, a.displays[t.display].id)
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.PixelStorei(gl.PACK_ROW_LENGTH, int32(dstPitch/4))
	gl.ReadPixels(
		int32(rect.Min.X), int32(rect.Min.Y),
		int32(rect.Dx()), int32(rect.Dy()),
		gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(dst),
	)
	gl.PixelStorei(gl.PACK_ROW_LENGTH, 0)
	gl.PixelStorei(gl.PACK_ALIGNMENT, 4)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	if err := checkError("read data"); err != nil {
		return err
	}

	for y := 0; y < rect.Dy(); y++ {
		unpremultiply(dst[y*dstPitch : y*dstPitch+rowLen])
	}
	return nil
}

func unpremultiply(row []byte) {
	for x := 0; x+3 < len(row); x += 4 {
		alpha := uint32(row[x+3])
		if alpha == 0 || alpha == 255 {
			continue
		}
		for c := range 3 {
			v := (uint32(row[x+c])*255 + alpha/2) / alpha
			row[x+c] = uint8(min(v, 255))
		}
	}
}

func (a *Accel) OpenOffscreen(res accel.Resource, tr accel.Transform) (accel.Display, error) {
	t, ok := a.textures[res]
	if !ok {
		return accel.NoHandle, accel.ErrInvalidHandle
	}
	if t.typ != accel.ImageRGBA32 {
		return accel.NoHandle, fmt.Errorf("offscreen display on %s resource", t.typ)
	}
	if tr != accel.NoRotate {
		return accel.NoHandle, fmt.Errorf("offscreen transform %d is not supported", tr)
	}
	if t.display != accel.NoHandle {
		return accel.NoHandle, fmt.Errorf("resource %d already backs display %d", res, t.display)
	}

	var id uint32
	gl.GenFramebuffers(1, &id)
	gl.BindFramebuffer(gl.FRAMEBUFFER, id)
	gl.FramebufferTexture(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, t.id, 0)

	if status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER); status != gl.FRAMEBUFFER_COMPLETE {
		gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
		gl.DeleteFramebuffers(1, &id)
		return accel.NoHandle, fmt.Errorf("framebuffer incomplete: 0x%x", status)
	}
	gl.ClearColor(0, 0, 0, 0)
	gl.Clear(gl.COLOR_BUFFER_BIT)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	if err := checkError("open offscreen"); err != nil {
		gl.DeleteFramebuffers(1, &id)
		return accel.NoHandle, err
	}

	d := accel.Display(a.nextID())
	a.displays[d] = &framebuffer{id: id, res: res}
	t.display = d
	return d, nil
}

func (a *Accel) CloseDisplay(d accel.Display) error {
	fb, ok := a.displays[d]
	if !ok {
		return accel.ErrInvalidHandle
	}
	for _, el := range a.elements {
		if el.display == d {
			return fmt.Errorf("close display %d: elements still on it", d)
		}
	}
	if t, ok := a.textures[fb.res]; ok {
		t.display = accel.NoHandle
	}
	gl.DeleteFramebuffers(1, &fb.id)
	delete(a.displays, d)
	return checkError("close display")
}

func (a *Accel) UpdateStart(priority int) (accel.Update, error) {
	if a.window == nil {
		return accel.NoHandle, ErrNotInitialised
	}
	u := accel.Update(a.nextID())
	a.updates[u] = &update{}
	return u, nil
}

func (a *Accel) ElementAdd(
	u accel.Update,
	d accel.Display,
	layer int,
	dst image.Rectangle,
	src accel.Resource,
	srcRect accel.FixedRect,
	alpha accel.Alpha,
	tr accel.Transform,
) (accel.Element, error) {
	upd, ok := a.updates[u]
	if !ok {
		return accel.NoHandle, fmt.Errorf("update %d: %w", u, accel.ErrInvalidHandle)
	}
	fb, ok := a.displays[d]
	if !ok {
		return accel.NoHandle, fmt.Errorf("display %d: %w", d, accel.ErrInvalidHandle)
	}
	t, ok := a.textures[src]
	if !ok {
		return accel.NoHandle, fmt.Errorf("resource %d: %w", src, accel.ErrInvalidHandle)
	}
	if tr != accel.NoRotate {
		return accel.NoHandle, fmt.Errorf("element transform %d is not supported", tr)
	}
	if t.typ == accel.Image8BPP && t.palette == 0 {
		return accel.NoHandle, fmt.Errorf("8bpp resource %d has no palette", src)
	}
	if err := checkRect(a.textures[fb.res], dst); err != nil {
		return accel.NoHandle, err
	}
	sx, sy, sw, sh := srcRect.Float()
	if sx < 0 || sy < 0 || sw <= 0 || sh <= 0 || sx+sw > float32(t.width) || sy+sh > float32(t.height) {
		return accel.NoHandle, fmt.Errorf("source %v of %dx%d: %w", srcRect, t.width, t.height, accel.ErrBadRect)
	}

	e := accel.Element(a.nextID())
	a.pending[e] = &element{
		display: d,
		layer:   layer,
		dst:     dst,
		src:     src,
		srcRect: srcRect,
		alpha:   alpha,
	}
	upd.adds = append(upd.adds, e)
	return e, nil
}

func (a *Accel) ElementRemove(u accel.Update, e accel.Element) error {
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

// SubmitSync redraws every display the update touches and waits for
// the GPU to finish
func (a *Accel) SubmitSync(u accel.Update) error {
	upd, ok := a.updates[u]
	if !ok {
		return fmt.Errorf("update %d: %w", u, accel.ErrInvalidHandle)
	}
	delete(a.updates, u)

	dirty := make(map[accel.Display]bool)
	for _, e := range upd.adds {
		el, ok := a.pending[e]
		if !ok {
			continue
		}
		delete(a.pending, e)
		a.elements[e] = el
		dirty[el.display] = true
	}
	for _, e := range upd.removes {
		if el, ok := a.elements[e]; ok {
			dirty[el.display] = true
		}
		delete(a.elements, e)
		delete(a.pending, e)
	}

	gl.UseProgram(a.program.id)
	gl.BindVertexArray(a.vao)
	gl.Uniform1i(a.program.tex, 0)
	gl.Uniform1i(a.program.pal, 1)
	for d := range dirty {
		a.compose(d)
	}
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	gl.Disable(gl.BLEND)
	gl.Finish()
	return checkError("submit")
}

func (a *Accel) compose(d accel.Display) {
	fb := a.displays[d]
	target := a.textures[fb.res]

	gl.BindFramebuffer(gl.FRAMEBUFFER, fb.id)
	gl.Viewport(0, 0, int32(target.width), int32(target.height))
	gl.ClearColor(0, 0, 0, 0)
	gl.Clear(gl.COLOR_BUFFER_BIT)

	// row 0 of the texture is y 0, so no flip between memory and GL
	projection := mgl32.Ortho2D(0, float32(target.width), 0, float32(target.height))
	gl.UniformMatrix4fv(a.program.projection, 1, false, &projection[0])

	var els []*element
	for _, el := range a.elements {
		if el.display == d {
			els = append(els, el)
		}
	}
	slices.SortStableFunc(els, func(x, y *element) int { return x.layer - y.layer })

	for _, el := range els {
		a.drawElement(el)
	}
}

func (a *Accel) drawElement(el *element) {
	t := a.textures[el.src]

	kind := kindRGBA
	switch t.typ {
	case accel.ImageRGBX32:
		kind = kindRGBX
	case accel.Image8BPP:
		kind = kindIndexed
	}

	sx, sy, sw, sh := el.srcRect.Float()
	w, h := float32(t.width), float32(t.height)
	gl.Uniform4f(a.program.srcRect, sx/w, sy/h, sw/w, sh/h)
	gl.Uniform4f(a.program.dstRect,
		float32(el.dst.Min.X), float32(el.dst.Min.Y),
		float32(el.dst.Dx()), float32(el.dst.Dy()),
	)
	gl.Uniform1i(a.program.kind, kind)
	fromSource := int32(0)
	if el.alpha.Flags&accel.AlphaFromSource != 0 {
		fromSource = 1
	}
	gl.Uniform1i(a.program.alphaFromSource, fromSource)
	gl.Uniform1f(a.program.opacity, float32(el.alpha.Opacity)/255)

	if el.alpha.Flags&accel.AlphaMix != 0 || el.alpha.Opacity < 255 {
		gl.Enable(gl.BLEND)
		gl.BlendFunc(gl.ONE, gl.ONE_MINUS_SRC_ALPHA)
	} else {
		gl.Disable(gl.BLEND)
	}

	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, t.id)
	gl.ActiveTexture(gl.TEXTURE1)
	gl.BindTexture(gl.TEXTURE_2D, t.palette)

	gl.DrawArrays(gl.TRIANGLE_STRIP, 0, 4)
}
