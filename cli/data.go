package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/opal-lang/weave/core/errors"
)

// DataFormat identifies how a data file is decoded.
type DataFormat int

const (
	FormatJSON DataFormat = iota
	FormatYAML
	FormatCBOR
)

func (f DataFormat) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	case FormatCBOR:
		return "cbor"
	default:
		return "unknown"
	}
}

// stdinPath names standard input wherever a file is expected.
const stdinPath = "-"

// formatFor picks the decoder from the file extension. Standard input is
// read as YAML, which also accepts JSON.
func formatFor(path string) (DataFormat, error) {
	if path == stdinPath {
		return FormatYAML, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".cbor":
		return FormatCBOR, nil
	}
	return 0, errors.Errorf("unsupported data format %q (want .json, .yaml, .yml or .cbor)", filepath.Ext(path))
}

var cborDecMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		IntDec:         cbor.IntDecConvertSigned,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

// loadData reads and decodes the data file at path. An empty path means no
// data.
func loadData(fs afero.Fs, stdin io.Reader, path string) (any, error) {
	if path == "" {
		return nil, nil
	}
	format, err := formatFor(path)
	if err != nil {
		return nil, err
	}

	var raw []byte
	if path == stdinPath {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = afero.ReadFile(fs, path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read data %s", path)
	}

	data, err := decodeData(format, raw)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s data %s", format, path)
	}
	return data, nil
}

func decodeData(format DataFormat, raw []byte) (any, error) {
	var data any
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&data); err != nil {
			return nil, err
		}
	case FormatYAML:
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return nil, err
		}
	case FormatCBOR:
		if err := cborDecMode.Unmarshal(raw, &data); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("unknown data format %d", int(format))
	}
	return normalize(data), nil
}

// normalize rewrites decoded values into the shapes templates and schema
// validation expect: string-keyed maps, []any, int64 for integral numbers.
func normalize(v any) any {
	switch v := v.(type) {
	case map[string]any:
		for k, e := range v {
			v[k] = normalize(e)
		}
		return v
	case map[any]any:
		m := make(map[string]any, len(v))
		for k, e := range v {
			m[fmt.Sprint(k)] = normalize(e)
		}
		return m
	case []any:
		for i, e := range v {
			v[i] = normalize(e)
		}
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case int:
		return int64(v)
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v)
		}
		return v
	}
	return v
}
