package glaccel

import (
	"fmt"
	"strings"

	"github.com/go-gl/gl/v4.1-core/gl"
)

const vertexShader = `#version 410 core
uniform mat4 projection;
// x, y, w, h in target pixels
uniform vec4 dstRect;
// x, y, w, h in normalised source coordinates
uniform vec4 srcRect;

in vec2 position;
out vec2 uv;

void main() {
	uv = srcRect.xy + position * srcRect.zw;
	gl_Position = projection * vec4(dstRect.xy + position * dstRect.zw, 0.0, 1.0);
}
` + "\x00"

const fragmentShader = `#version 410 core
const int kindRGBA = 0;
const int kindRGBX = 1;
const int kindIndexed = 2;

uniform sampler2D tex;
uniform sampler2D pal;
uniform int kind;
uniform bool alphaFromSource;
uniform float opacity;

in vec2 uv;
out vec4 colour;

void main() {
	vec4 c;
	if (kind == kindIndexed) {
		int idx = int(texture(tex, uv).r * 255.0 + 0.5);
		c = texelFetch(pal, ivec2(idx, 0), 0);
	} else {
		c = texture(tex, uv);
	}
	if (kind == kindRGBX || !alphaFromSource) {
		c.a = 1.0;
	}
	c.a *= opacity;
	// the target holds premultiplied colour
	colour = vec4(c.rgb * c.a, c.a);
}
` + "\x00"

const (
	kindRGBA int32 = iota
	kindRGBX
	kindIndexed
)

type program struct {
	id uint32

	projection      int32
	dstRect         int32
	srcRect         int32
	tex             int32
	pal             int32
	kind            int32
	alphaFromSource int32
	opacity         int32
	position        uint32
}

func newProgram() (*program, error) {
	vs, err := compileShader(vertexShader, gl.VERTEX_SHADER)
	if err != nil {
		return nil, err
	}
	fs, err := compileShader(fragmentShader, gl.FRAGMENT_SHADER)
	if err != nil {
		gl.DeleteShader(vs)
		return nil, err
	}

	id := gl.CreateProgram()
	gl.AttachShader(id, vs)
	gl.AttachShader(id, fs)
	gl.LinkProgram(id)
	gl.DeleteShader(vs)
	gl.DeleteShader(fs)

	var status int32
	gl.GetProgramiv(id, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(id, gl.INFO_LOG_LENGTH, &logLength)

		logmsg := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(id, logLength, nil, gl.Str(logmsg))
		gl.DeleteProgram(id)

		return nil, fmt.Errorf("failed to link program: %v", logmsg)
	}

	return &program{
		id:              id,
		projection:      gl.GetUniformLocation(id, gl.Str("projection\x00")),
		dstRect:         gl.GetUniformLocation(id, gl.Str("dstRect\x00")),
		srcRect:         gl.GetUniformLocation(id, gl.Str("srcRect\x00")),
		tex:             gl.GetUniformLocation(id, gl.Str("tex\x00")),
		pal:             gl.GetUniformLocation(id, gl.Str("pal\x00")),
		kind:            gl.GetUniformLocation(id, gl.Str("kind\x00")),
		alphaFromSource: gl.GetUniformLocation(id, gl.Str("alphaFromSource\x00")),
		opacity:         gl.GetUniformLocation(id, gl.Str("opacity\x00")),
		position:        uint32(gl.GetAttribLocation(id, gl.Str("position\x00"))),
	}, nil
}

func compileShader(source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)

	csources, free := gl.Strs(source)
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)

		clog := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(clog))
		gl.DeleteShader(shader)

		return 0, fmt.Errorf("failed to compile shader: %v", clog)
	}

	return shader, nil
}
