package ncio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// ncType is a netCDF external data type code.
type ncType int32

const (
	ncByte   ncType = 1
	ncChar   ncType = 2
	ncShort  ncType = 3
	ncInt    ncType = 4
	ncFloat  ncType = 5
	ncDouble ncType = 6
	ncUbyte  ncType = 7
	ncUshort ncType = 8
	ncUint   ncType = 9
	ncInt64  ncType = 10
	ncUint64 ncType = 11
)

func (t ncType) size() int {
	switch t {
	case ncByte, ncChar, ncUbyte:
		return 1
	case ncShort, ncUshort:
		return 2
	case ncInt, ncFloat, ncUint:
		return 4
	case ncDouble, ncInt64, ncUint64:
		return 8
	}
	return 0
}

// Header list tags.
const (
	tagDimension = 0x0A
	tagVariable  = 0x0B
	tagAttribute = 0x0C
)

// streamingNumRecs marks a file whose record count was never updated.
const streamingNumRecs = 0xFFFFFFFF

type cdfDim struct {
	name   string
	length int64 // 0 for the record dimension
}

type cdfAttr struct {
	name string
	typ  ncType
	n    int64
	raw  []byte
}

type cdfVar struct {
	name   string
	dimIDs []int
	attrs  []cdfAttr
	typ    ncType
	vsize  int64
	begin  int64
}

type cdfHeader struct {
	version byte
	numRecs int64
	dims    []cdfDim
	attrs   []cdfAttr
	vars    []cdfVar
}

func (h *cdfHeader) isRecordVar(v *cdfVar) bool {
	return len(v.dimIDs) > 0 && h.dims[v.dimIDs[0]].length == 0
}

// shape returns the variable's dimension lengths with the record
// dimension set to the record count.
func (h *cdfHeader) shape(v *cdfVar) []int {
	out := make([]int, len(v.dimIDs))
	for i, id := range v.dimIDs {
		l := h.dims[id].length
		if l == 0 {
			l = h.numRecs
		}
		out[i] = int(l)
	}
	return out
}

// recSize is the distance between consecutive records. A file with a
// single record variable packs records without padding.
func (h *cdfHeader) recSize() int64 {
	var vars []*cdfVar
	for i := range h.vars {
		if h.isRecordVar(&h.vars[i]) {
			vars = append(vars, &h.vars[i])
		}
	}
	if len(vars) == 1 {
		return int64(perRecordCount(h, vars[0])) * int64(vars[0].typ.size())
	}
	var size int64
	for _, v := range vars {
		size += v.vsize
	}
	return size
}

func perRecordCount(h *cdfHeader, v *cdfVar) int {
	n := 1
	for _, id := range v.dimIDs[1:] {
		n *= int(h.dims[id].length)
	}
	return n
}

func pad4(n int64) int64 {
	return (n + 3) &^ 3
}

// cdfDecoder reads header fields; the first error sticks.
type cdfDecoder struct {
	r       *bufio.Reader
	version byte
	err     error
}

func (d *cdfDecoder) read(n int64) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > math.MaxInt32 {
		d.err = fmt.Errorf("header field of %d bytes", n)
		return nil
	}
	buf := make([]byte, n)
	_, d.err = io.ReadFull(d.r, buf)
	return buf
}

func (d *cdfDecoder) u32() uint32 {
	b := d.read(4)
	if d.err != nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (d *cdfDecoder) u64() uint64 {
	b := d.read(8)
	if d.err != nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// count reads a NON_NEG: 32 bits, 64 bits in CDF-5.
func (d *cdfDecoder) count() int64 {
	if d.version == 5 {
		return int64(d.u64())
	}
	return int64(d.u32())
}

// offset reads an OFFSET: 32 bits in CDF-1, 64 bits otherwise.
func (d *cdfDecoder) offset() int64 {
	if d.version == 1 {
		return int64(d.u32())
	}
	return int64(d.u64())
}

func (d *cdfDecoder) name() string {
	n := d.count()
	b := d.read(pad4(n))
	if d.err != nil {
		return ""
	}
	return string(b[:n])
}

// list reads a list header and returns its length, or 0 for ABSENT.
func (d *cdfDecoder) list(tag uint32) int64 {
	got := d.u32()
	n := d.count()
	if d.err == nil && got != tag && !(got == 0 && n == 0) {
		d.err = fmt.Errorf("unexpected list tag 0x%x (want 0x%x)", got, tag)
	}
	return n
}

func (d *cdfDecoder) attrs() []cdfAttr {
	n := d.list(tagAttribute)
	var out []cdfAttr
	for i := int64(0); i < n && d.err == nil; i++ {
		a := cdfAttr{name: d.name(), typ: ncType(d.u32())}
		a.n = d.count()
		size := int64(a.typ.size())
		if d.err == nil && size == 0 {
			d.err = fmt.Errorf("attribute %q: unknown type %d", a.name, a.typ)
		}
		b := d.read(pad4(a.n * size))
		if d.err == nil {
			a.raw = b[:a.n*size]
		}
		out = append(out, a)
	}
	return out
}

func decodeHeader(r io.Reader) (*cdfHeader, error) {
	br := bufio.NewReader(r)
	magic := make([]byte, 4)
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if !bytes.Equal(magic[:3], classicMagic) || (magic[3] != 1 && magic[3] != 2 && magic[3] != 5) {
		return nil, errors.New("not a classic netCDF file")
	}
	d := &cdfDecoder{r: br, version: magic[3]}
	h := &cdfHeader{version: magic[3]}

	if h.version == 5 {
		h.numRecs = int64(d.u64())
	} else {
		h.numRecs = int64(d.u32())
		if h.numRecs == streamingNumRecs {
			return nil, errors.New("record count was never written (streaming file)")
		}
	}

	ndims := d.list(tagDimension)
	for i := int64(0); i < ndims && d.err == nil; i++ {
		h.dims = append(h.dims, cdfDim{name: d.name(), length: d.count()})
	}
	h.attrs = d.attrs()

	nvars := d.list(tagVariable)
	for i := int64(0); i < nvars && d.err == nil; i++ {
		v := cdfVar{name: d.name()}
		nd := d.count()
		for j := int64(0); j < nd && d.err == nil; j++ {
			id := int(d.count())
			if id < 0 || id >= len(h.dims) {
				d.err = fmt.Errorf("variable %q: dimension id %d out of range", v.name, id)
				break
			}
			v.dimIDs = append(v.dimIDs, id)
		}
		v.attrs = d.attrs()
		v.typ = ncType(d.u32())
		v.vsize = d.count()
		v.begin = d.offset()
		if d.err == nil && v.typ.size() == 0 {
			d.err = fmt.Errorf("variable %q: unknown type %d", v.name, v.typ)
		}
		h.vars = append(h.vars, v)
	}
	if d.err != nil {
		return nil, fmt.Errorf("read header: %w", d.err)
	}
	return h, nil
}

// readCDF reads a classic file into its format-independent parts.
func readCDF(path string) (vars []rawVar, globals map[string]string, dimLens map[string]int, dimOrder []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	defer func() { _ = f.Close() }()

	h, err := decodeHeader(f)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	dimLens = make(map[string]int, len(h.dims))
	for _, d := range h.dims {
		l := d.length
		if l == 0 {
			l = h.numRecs
		}
		dimLens[d.name] = int(l)
		dimOrder = append(dimOrder, d.name)
	}
	globals = cdfAttrText(h.attrs)

	recSize := h.recSize()
	for i := range h.vars {
		v := &h.vars[i]
		rv := rawVar{name: v.name, shape: h.shape(v), attrs: cdfAttrText(v.attrs)}
		for _, id := range v.dimIDs {
			rv.dims = append(rv.dims, h.dims[id].name)
		}

		data, err := readVarBytes(f, h, v, recSize)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("%s: read variable %q: %w", path, v.name, err)
		}
		if v.typ == ncChar {
			rv.isChar = true
			rv.chars = data
		} else {
			rv.values = decodeValues(v.typ, data)
		}
		vars = append(vars, rv)
	}
	return vars, globals, dimLens, dimOrder, nil
}

func readVarBytes(r io.ReaderAt, h *cdfHeader, v *cdfVar, recSize int64) ([]byte, error) {
	size := int64(v.typ.size())
	if !h.isRecordVar(v) {
		n := int64(1)
		for _, l := range h.shape(v) {
			n *= int64(l)
		}
		buf := make([]byte, n*size)
		_, err := r.ReadAt(buf, v.begin)
		return buf, err
	}

	chunk := int64(perRecordCount(h, v)) * size
	buf := make([]byte, chunk*h.numRecs)
	for rec := int64(0); rec < h.numRecs; rec++ {
		if _, err := r.ReadAt(buf[rec*chunk:(rec+1)*chunk], v.begin+rec*recSize); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func decodeValues(t ncType, b []byte) []float64 {
	n := len(b) / t.size()
	out := make([]float64, n)
	be := binary.BigEndian
	for i := 0; i < n; i++ {
		switch t {
		case ncByte:
			out[i] = float64(int8(b[i]))
		case ncUbyte:
			out[i] = float64(b[i])
		case ncShort:
			out[i] = float64(int16(be.Uint16(b[2*i:])))
		case ncUshort:
			out[i] = float64(be.Uint16(b[2*i:]))
		case ncInt:
			out[i] = float64(int32(be.Uint32(b[4*i:])))
		case ncUint:
			out[i] = float64(be.Uint32(b[4*i:]))
		case ncFloat:
			out[i] = float64(math.Float32frombits(be.Uint32(b[4*i:])))
		case ncDouble:
			out[i] = math.Float64frombits(be.Uint64(b[8*i:]))
		case ncInt64:
			out[i] = float64(int64(be.Uint64(b[8*i:])))
		case ncUint64:
			out[i] = float64(be.Uint64(b[8*i:]))
		}
	}
	return out
}

// cdfAttrText renders attributes as text: character attributes verbatim,
// numeric ones through formatAttr.
func cdfAttrText(attrs []cdfAttr) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for _, a := range attrs {
		if a.typ == ncChar {
			out[a.name] = string(bytes.TrimRight(a.raw, "\x00"))
			continue
		}
		out[a.name] = formatAttr(decodeValues(a.typ, a.raw))
	}
	return out
}

// cdfEncoder writes header fields of a CDF-2 file.
type cdfEncoder struct {
	buf bytes.Buffer
}

func (e *cdfEncoder) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *cdfEncoder) u64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

func (e *cdfEncoder) padded(b []byte) {
	e.buf.Write(b)
	e.buf.Write(make([]byte, pad4(int64(len(b)))-int64(len(b))))
}

func (e *cdfEncoder) name(s string) {
	e.u32(uint32(len(s)))
	e.padded([]byte(s))
}

func (e *cdfEncoder) list(tag uint32, n int) {
	if n == 0 {
		e.u32(0)
		e.u32(0)
		return
	}
	e.u32(tag)
	e.u32(uint32(n))
}

func (e *cdfEncoder) attrs(attrs []cdfAttr) {
	e.list(tagAttribute, len(attrs))
	for _, a := range attrs {
		e.name(a.name)
		e.u32(uint32(a.typ))
		e.u32(uint32(a.n))
		e.padded(a.raw)
	}
}

func encodeHeader(h *cdfHeader) []byte {
	var e cdfEncoder
	e.buf.Write(classicMagic)
	e.buf.WriteByte(2)
	e.u32(uint32(h.numRecs))

	e.list(tagDimension, len(h.dims))
	for _, d := range h.dims {
		e.name(d.name)
		e.u32(uint32(d.length))
	}
	e.attrs(h.attrs)

	e.list(tagVariable, len(h.vars))
	for _, v := range h.vars {
		e.name(v.name)
		e.u32(uint32(len(v.dimIDs)))
		for _, id := range v.dimIDs {
			e.u32(uint32(id))
		}
		e.attrs(v.attrs)
		e.u32(uint32(v.typ))
		vsize := v.vsize
		if vsize > math.MaxUint32 {
			vsize = math.MaxUint32
		}
		e.u32(uint32(vsize))
		e.u64(uint64(v.begin))
	}
	return e.buf.Bytes()
}

// textAttrs turns string attributes into character attributes in key
// order.
func textAttrs(attrs map[string]string) []cdfAttr {
	var out []cdfAttr
	for _, k := range sortedKeys(attrs) {
		out = append(out, cdfAttr{name: k, typ: ncChar, n: int64(len(attrs[k])), raw: []byte(attrs[k])})
	}
	return out
}

// cdfWriter lays out a CDF-2 (64-bit offset) file without a record
// dimension: a header followed by each variable's data, 4-byte aligned.
type cdfWriter struct {
	h    cdfHeader
	data [][]byte
	ids  map[string]int
}

func newCDFWriter() *cdfWriter {
	return &cdfWriter{h: cdfHeader{version: 2}, ids: make(map[string]int)}
}

func (w *cdfWriter) addDim(name string, length int) {
	w.ids[name] = len(w.h.dims)
	w.h.dims = append(w.h.dims, cdfDim{name: name, length: int64(length)})
}

func (w *cdfWriter) addVar(name string, dims []string, typ ncType, attrs map[string]string, data []byte) {
	v := cdfVar{name: name, typ: typ, attrs: textAttrs(attrs), vsize: pad4(int64(len(data)))}
	for _, d := range dims {
		v.dimIDs = append(v.dimIDs, w.ids[d])
	}
	w.h.vars = append(w.h.vars, v)
	w.data = append(w.data, data)
}

func (w *cdfWriter) writeTo(out io.Writer) error {
	// begin offsets are 64-bit, so the header size does not depend on them.
	begin := int64(len(encodeHeader(&w.h)))
	for i := range w.h.vars {
		w.h.vars[i].begin = begin
		begin += w.h.vars[i].vsize
	}

	bw := bufio.NewWriter(out)
	if _, err := bw.Write(encodeHeader(&w.h)); err != nil {
		return err
	}
	for i, data := range w.data {
		if _, err := bw.Write(data); err != nil {
			return fmt.Errorf("write variable %q: %w", w.h.vars[i].name, err)
		}
		if _, err := bw.Write(make([]byte, w.h.vars[i].vsize-int64(len(data)))); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func encodeFloat64s(vals []float64) []byte {
	out := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.BigEndian.PutUint64(out[8*i:], math.Float64bits(v))
	}
	return out
}

func encodeFloat32s(vals []float64) []byte {
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.BigEndian.PutUint32(out[4*i:], math.Float32bits(float32(v)))
	}
	return out
}
