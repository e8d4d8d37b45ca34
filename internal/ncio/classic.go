package ncio

import (
	"fmt"
	"os"
	"sort"

	"github.com/mmr-tortoise/oscar-runner/internal/dataset"
)

// readClassic loads a CDF-1, CDF-2 or CDF-5 file.
func readClassic(path string) (*dataset.Dataset, error) {
	vars, globals, dimLens, dimOrder, err := readCDF(path)
	if err != nil {
		return nil, err
	}
	return assemble(vars, globals, dimLens, dimOrder)
}

// checkDims rejects zero-length dimensions: the classic format reserves
// length 0 for the record dimension and netCDF-4 for unlimited ones.
func checkDims(ds *dataset.Dataset) error {
	for _, c := range ds.Coords() {
		if c.Len == 0 {
			return fmt.Errorf("dimension %q has length 0, which netCDF reads back as unlimited", c.Dim)
		}
	}
	return nil
}

// writeClassic stores ds as a CDF-2 file.
func writeClassic(path string, ds *dataset.Dataset, enc Encoding) error {
	if err := checkDims(ds); err != nil {
		return err
	}
	coords, dims, lens := fileLayout(ds)

	w := newCDFWriter()
	for i, d := range dims {
		w.addDim(d, lens[i])
	}
	for _, c := range coords {
		if c.IsString() {
			w.addDim(strlenDim(c.Dim), maxLabelLen(c.Strings))
		}
	}
	w.h.attrs = textAttrs(ds.Attrs)

	for _, c := range coords {
		if c.IsString() {
			width := maxLabelLen(c.Strings)
			w.addVar(c.Dim, []string{c.Dim, strlenDim(c.Dim)}, ncChar, c.Attrs, packLabels(c.Strings, width))
		} else {
			w.addVar(c.Dim, []string{c.Dim}, ncDouble, c.Attrs, encodeFloat64s(c.Numbers))
		}
	}
	for _, v := range ds.Vars() {
		if enc.Float32 {
			w.addVar(v.Name, v.Dims, ncFloat, v.Attrs, encodeFloat32s(v.Values()))
		} else {
			w.addVar(v.Name, v.Dims, ncDouble, v.Attrs, encodeFloat64s(v.Values()))
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := w.writeTo(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
