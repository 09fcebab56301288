package render

import (
	"embed"
	"io/fs"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/naga"
)

//go:embed shaders/*.wgsl
var fallbackShaders embed.FS

// Shader is SPIR-V code ready for a shader module.
type Shader struct {
	Code  []uint32
	Entry string
	// Source is the file the code came from; embedded fallbacks are
	// prefixed with "embedded:".
	Source string
}

// LoadShader reads a SPIR-V blob from path. When the file does not exist
// and fallback names an embedded WGSL file, that file is compiled instead.
func LoadShader(path, fallback, fallbackEntry string) (Shader, error) {
	code, err := os.ReadFile(path)
	if err == nil {
		words, err := spirvWords(code)
		if err != nil {
			return Shader{}, errors.Wrapf(err, "shader %s", path)
		}
		return Shader{Code: words, Entry: "main", Source: path}, nil
	}
	if !errors.Is(err, fs.ErrNotExist) || fallback == "" {
		return Shader{}, errors.Wrapf(err, "read shader %s", path)
	}

	src, err := fallbackShaders.ReadFile("shaders/" + fallback)
	if err != nil {
		return Shader{}, errors.Wrapf(err, "no fallback for missing shader %s", path)
	}
	spirv, err := naga.Compile(string(src))
	if err != nil {
		return Shader{}, errors.Wrapf(err, "compile %s", fallback)
	}
	words, err := spirvWords(spirv)
	if err != nil {
		return Shader{}, errors.Wrapf(err, "compiled %s", fallback)
	}
	return Shader{Code: words, Entry: fallbackEntry, Source: "embedded:" + fallback}, nil
}

// spirvWords repacks little-endian bytes into 32-bit words.
func spirvWords(b []byte) ([]uint32, error) {
	if len(b) == 0 {
		return nil, errors.Wrap(ErrInvalidShader, "empty")
	}
	if len(b)%4 != 0 {
		return nil, errors.Wrapf(ErrInvalidShader, "size %d is not a multiple of 4", len(b))
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = uint32(b[i*4]) |
			uint32(b[i*4+1])<<8 |
			uint32(b[i*4+2])<<16 |
			uint32(b[i*4+3])<<24
	}
	return words, nil
}
