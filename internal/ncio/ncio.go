package ncio

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/mmr-tortoise/oscar-runner/internal/dataset"
)

// Format is an on-disk netCDF flavour.
type Format string

const (
	// FormatNetCDF4 is the HDF5-based netCDF-4 format.
	FormatNetCDF4 Format = "netcdf4"

	// FormatClassic is the classic CDF-1/CDF-2/CDF-5 format. Files are
	// written as CDF-2.
	FormatClassic Format = "classic"
)

// ParseFormat converts a string to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatNetCDF4, FormatClassic:
		return f, nil
	default:
		return "", fmt.Errorf("invalid netCDF format: %q (valid: netcdf4, classic)", s)
	}
}

// Encoding controls how data variables are written. Coordinate variables
// are always written as double precision (numeric) or characters.
type Encoding struct {
	// Format selects the file flavour.
	Format Format `json:"format" yaml:"format" toml:"format"`

	// Float32 stores data variables as 32-bit floats instead of 64-bit.
	Float32 bool `json:"float32" yaml:"float32" toml:"float32"`

	// Deflate enables zlib compression (netcdf4 only).
	Deflate bool `json:"deflate" yaml:"deflate" toml:"deflate"`

	// Level is the zlib level, 1..9.
	Level int `json:"level" yaml:"level" toml:"level"`

	// Shuffle enables the HDF5 shuffle filter ahead of deflate.
	Shuffle bool `json:"shuffle" yaml:"shuffle" toml:"shuffle"`
}

// OutputEncoding is how model outputs are written: float32 with zlib,
// matching xarray's {'zlib': True, 'dtype': float32} encoding.
func OutputEncoding() Encoding {
	return Encoding{Format: FormatNetCDF4, Float32: true, Deflate: true, Level: 4, Shuffle: true}
}

// StagingEncoding is how datasets handed to the model bridge are written:
// full precision, uncompressed, in a format any netCDF reader opens.
func StagingEncoding() Encoding {
	return Encoding{Format: FormatClassic}
}

// Validate checks the encoding for unsupported combinations.
func (e Encoding) Validate() error {
	if _, err := ParseFormat(string(e.Format)); err != nil {
		return err
	}
	if e.Deflate {
		if e.Format != FormatNetCDF4 {
			return fmt.Errorf("deflate requires the netcdf4 format, got %s", e.Format)
		}
		if e.Level < 1 || e.Level > 9 {
			return fmt.Errorf("deflate level %d out of range (1-9)", e.Level)
		}
	}
	return nil
}

// Signatures at the start of each file flavour.
var (
	classicMagic = []byte("CDF")
	hdf5Magic    = []byte("\x89HDF\r\n\x1a\n")
)

// DetectFormat reads the file signature.
func DetectFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	head := make([]byte, len(hdf5Magic))
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("read signature of %s: %w", path, err)
	}
	head = head[:n]

	switch {
	case bytes.HasPrefix(head, hdf5Magic):
		return FormatNetCDF4, nil
	case bytes.HasPrefix(head, classicMagic) && n >= 4 && (head[3] == 1 || head[3] == 2 || head[3] == 5):
		return FormatClassic, nil
	default:
		return "", fmt.Errorf("%s is not a netCDF file", path)
	}
}

// Read loads a netCDF file into a dataset.
func Read(path string) (*dataset.Dataset, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatClassic:
		return readClassic(path)
	default:
		return readNetCDF4(path)
	}
}

// Write stores a dataset at path, replacing any existing file.
func Write(path string, ds *dataset.Dataset, enc Encoding) error {
	if err := enc.Validate(); err != nil {
		return err
	}
	switch enc.Format {
	case FormatClassic:
		return writeClassic(path, ds, enc)
	default:
		return writeNetCDF4(path, ds, enc)
	}
}

// strlenDim names the character dimension of a string coordinate.
func strlenDim(dim string) string {
	return dim + "_strlen"
}

// maxLabelLen returns the width of the character array needed for the
// labels, at least 1.
func maxLabelLen(labels []string) int {
	n := 1
	for _, s := range labels {
		if len(s) > n {
			n = len(s)
		}
	}
	return n
}

// packLabels lays labels out as a zero-padded [len(labels)][width] array.
func packLabels(labels []string, width int) []byte {
	out := make([]byte, len(labels)*width)
	for i, s := range labels {
		copy(out[i*width:(i+1)*width], s)
	}
	return out
}

// unpackLabels is the inverse of packLabels; trailing NULs and spaces are
// trimmed.
func unpackLabels(data []byte, n, width int) []string {
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = strings.TrimRight(string(data[i*width:(i+1)*width]), "\x00 ")
	}
	return out
}

// rawVar is the format-independent view of a file variable used to build
// a dataset.
type rawVar struct {
	name   string
	dims   []string
	shape  []int
	isChar bool
	values []float64
	chars  []byte
	attrs  map[string]string

	// isString marks a variable-length string variable read as text.
	isString bool
	strings  []string
}

// assemble turns file variables into a dataset: coordinate variables
// (a numeric 1-D variable named after its dim, or a 2-D char variable
// named after its first dim, or a 1-D string variable named after its dim)
// become coordinates, other numeric variables become data variables.
// Non-coordinate character and string variables are skipped.
func assemble(vars []rawVar, globals map[string]string, dimLens map[string]int, dimOrder []string) (*dataset.Dataset, error) {
	ds := dataset.New()
	for k, v := range globals {
		ds.Attrs[k] = v
	}

	strlenDims := make(map[string]bool)
	coordVars := make(map[string]bool)
	for _, rv := range vars {
		switch {
		case rv.isChar && len(rv.dims) == 2 && rv.dims[0] == rv.name:
			c := dataset.NewStringCoord(rv.name, unpackLabels(rv.chars, rv.shape[0], rv.shape[1]))
			c.Attrs = rv.attrs
			if err := ds.SetCoord(c); err != nil {
				return nil, err
			}
			strlenDims[rv.dims[1]] = true
			coordVars[rv.name] = true
		case rv.isString && len(rv.dims) == 1 && rv.dims[0] == rv.name:
			if len(rv.strings) != rv.shape[0] {
				return nil, fmt.Errorf("string coordinate %q has %d labels for length %d", rv.name, len(rv.strings), rv.shape[0])
			}
			c := dataset.NewStringCoord(rv.name, rv.strings)
			c.Attrs = rv.attrs
			if err := ds.SetCoord(c); err != nil {
				return nil, err
			}
			coordVars[rv.name] = true
		case !rv.isChar && len(rv.dims) == 1 && rv.dims[0] == rv.name:
			c := dataset.NewNumericCoord(rv.name, decodeCF(rv.values, rv.attrs))
			c.Attrs = stripCFAttrs(rv.attrs)
			if err := ds.SetCoord(c); err != nil {
				return nil, err
			}
			coordVars[rv.name] = true
		}
	}

	// Dimensions with no coordinate variable are registered in file order
	// so that index-only coordinates exist even when no variable uses them.
	for _, dim := range dimOrder {
		if strlenDims[dim] {
			continue
		}
		if _, ok := ds.Coord(dim); !ok {
			if err := ds.SetCoord(dataset.NewIndexCoord(dim, dimLens[dim])); err != nil {
				return nil, err
			}
		}
	}

	for _, rv := range vars {
		if coordVars[rv.name] || rv.isChar || rv.isString {
			continue
		}
		v, err := dataset.NewVariable(rv.name, rv.dims, rv.shape, decodeCF(rv.values, rv.attrs))
		if err != nil {
			return nil, err
		}
		v.Attrs = stripCFAttrs(rv.attrs)
		if err := ds.Set(v); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// decodeCF applies _FillValue/missing_value masking and
// scale_factor/add_offset unpacking in place.
func decodeCF(values []float64, attrs map[string]string) []float64 {
	var fills []float64
	for _, key := range []string{"_FillValue", "missing_value"} {
		if s, ok := attrs[key]; ok {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				fills = append(fills, f)
			}
		}
	}
	scale, offset := 1.0, 0.0
	if s, ok := attrs["scale_factor"]; ok {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			scale = f
		}
	}
	if s, ok := attrs["add_offset"]; ok {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			offset = f
		}
	}

	for i, v := range values {
		for _, fill := range fills {
			if v == fill || (math.IsNaN(fill) && math.IsNaN(v)) {
				v = math.NaN()
				break
			}
		}
		if !math.IsNaN(v) {
			v = v*scale + offset
		}
		values[i] = v
	}
	return values
}

// stripCFAttrs drops the attributes consumed by decodeCF.
func stripCFAttrs(attrs map[string]string) map[string]string {
	if attrs == nil {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		switch k {
		case "_FillValue", "missing_value", "scale_factor", "add_offset":
			continue
		}
		out[k] = v
	}
	return out
}

// formatAttr renders a numeric attribute as text; single values print
// bare, multiple values space-separated.
func formatAttr(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

// fileLayout returns the coordinates that are written as coordinate
// variables, and every dimension in dataset order.
func fileLayout(ds *dataset.Dataset) (coords []*dataset.Coord, dims []string, lens []int) {
	for _, c := range ds.Coords() {
		dims = append(dims, c.Dim)
		lens = append(lens, c.Len)
		if c.HasLabels() {
			coords = append(coords, c)
		}
	}
	return coords, dims, lens
}
