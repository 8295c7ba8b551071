package recording

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

var (
	zstdDecoder *zstd.Decoder
	zstdEncoder *zstd.Encoder
	cborDecMode cbor.DecMode
)

func init() {
	var err error
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("recording: zstd decoder initialization failed: " + err.Error())
	}
	zstdEncoder, err = zstd.NewWriter(nil)
	if err != nil {
		panic("recording: zstd encoder initialization failed: " + err.Error())
	}

	// Recordings never use non-string map keys; decode maps the way
	// encoding/json would so normalize can re-marshal them.
	cborDecMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("recording: cbor decoder initialization failed: " + err.Error())
	}
}

// FileSource reads a recording from disk. The format follows the file
// extension: .json (comments and trailing commas allowed), .yaml/.yml or
// .cbor, optionally compressed with a trailing .gz or .zst.
type FileSource struct {
	path string
}

// NewFileSource returns a Source reading path. path must not be empty.
func NewFileSource(path string) (*FileSource, error) {
	if path == "" {
		return nil, errors.Wrap(ErrInvalidArgs, "path is required")
	}
	return &FileSource{path: path}, nil
}

// Load reads, decodes and validates the recording file.
func (s *FileSource) Load(ctx context.Context) (*Recording, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading recording %s", s.path)
	}

	name := strings.ToLower(filepath.Base(s.path))
	switch {
	case strings.HasSuffix(name, ".gz"):
		data, err = gunzip(data)
		name = strings.TrimSuffix(name, ".gz")
	case strings.HasSuffix(name, ".zst"):
		data, err = zstdDecoder.DecodeAll(data, nil)
		name = strings.TrimSuffix(name, ".zst")
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decompressing recording %s", s.path)
	}

	v, err := decode(filepath.Ext(name), data)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedRecording, "%s: %v", s.path, err)
	}

	rec, err := parseValue(v, false)
	if err != nil {
		return nil, errors.Wrap(err, s.path)
	}
	return rec, nil
}

func decode(ext string, data []byte) (any, error) {
	var v any
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, errors.Wrap(err, "parsing yaml")
		}
	case ".cbor":
		if err := cborDecMode.Unmarshal(data, &v); err != nil {
			return nil, errors.Wrap(err, "parsing cbor")
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), &v); err != nil {
			return nil, errors.Wrap(err, "parsing json")
		}
	}
	return v, nil
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// WriteFile encodes rec to path using the same extension rules FileSource
// reads with.
func WriteFile(path string, rec *Recording) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	name := strings.ToLower(filepath.Base(path))
	compress := ""
	for _, ext := range []string{".gz", ".zst"} {
		if strings.HasSuffix(name, ext) {
			compress = ext
			name = strings.TrimSuffix(name, ext)
		}
	}

	data, err := encode(filepath.Ext(name), rec)
	if err != nil {
		return errors.Wrapf(err, "encoding recording %s", path)
	}

	switch compress {
	case ".gz":
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return errors.Wrapf(err, "compressing recording %s", path)
		}
		if err := zw.Close(); err != nil {
			return errors.Wrapf(err, "compressing recording %s", path)
		}
		data = buf.Bytes()
	case ".zst":
		data = zstdEncoder.EncodeAll(data, nil)
	}
	return os.WriteFile(path, data, 0o644)
}

func encode(ext string, rec *Recording) ([]byte, error) {
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, err
	}
	switch ext {
	case ".yaml", ".yml", ".cbor":
	default:
		return append(raw, '\n'), nil
	}

	// Go through the generic form so field names follow the JSON tags.
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	if ext == ".cbor" {
		return cbor.Marshal(v)
	}
	return yaml.Marshal(v)
}
