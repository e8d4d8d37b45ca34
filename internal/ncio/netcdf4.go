package ncio

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/mmr-tortoise/oscar-runner/internal/dataset"
)

// netCDF-C utilities that handle the HDF5-based format.
const (
	nccopyTool = "nccopy"
	ncdumpTool = "ncdump"
)

// ErrToolsMissing is returned when a netCDF-4 file must be read or written
// and the netCDF-C utilities are not on PATH.
var ErrToolsMissing = errors.New("netCDF-4 support needs the netCDF-C utilities (nccopy, ncdump) on PATH")

// ToolsAvailable reports whether netCDF-4 files can be read and written.
func ToolsAvailable() bool {
	for _, tool := range []string{nccopyTool, ncdumpTool} {
		if _, err := exec.LookPath(tool); err != nil {
			return false
		}
	}
	return true
}

func runTool(name string, args ...string) ([]byte, error) {
	bin, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found", ErrToolsMissing, name)
	}
	var stderr bytes.Buffer
	cmd := exec.Command(bin, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// readNetCDF4 loads a netCDF-4 file. Numeric and character variables are
// converted to a temporary CDF-5 file with nccopy; variable-length string
// variables, which no classic format can hold, are read from ncdump text.
func readNetCDF4(path string) (*dataset.Dataset, error) {
	hdr, err := dumpHeader(path, false)
	if err != nil {
		return nil, err
	}

	var plain, strs []string
	for _, v := range hdr.vars {
		if v.typ == "string" {
			strs = append(strs, v.name)
		} else {
			plain = append(plain, v.name)
		}
	}

	var vars []rawVar
	globals := hdr.globals
	if len(plain) > 0 {
		dir, err := os.MkdirTemp("", "ncio-")
		if err != nil {
			return nil, err
		}
		defer func() { _ = os.RemoveAll(dir) }()

		tmp := filepath.Join(dir, "plain.nc")
		args := []string{"-k", "nc5"}
		if len(strs) > 0 {
			args = append(args, "-V", strings.Join(plain, ","))
		}
		if _, err := runTool(nccopyTool, append(args, path, tmp)...); err != nil {
			return nil, err
		}
		if vars, globals, _, _, err = readCDF(tmp); err != nil {
			return nil, err
		}
	}

	if len(strs) > 0 {
		out, err := runTool(ncdumpTool, "-v", strings.Join(strs, ","), path)
		if err != nil {
			return nil, err
		}
		values := parseCDLStrings(dataSection(string(out)))
		for _, v := range hdr.vars {
			if v.typ != "string" {
				continue
			}
			rv := rawVar{name: v.name, dims: v.dims, isString: true, strings: values[v.name], attrs: v.attrs}
			for _, d := range v.dims {
				rv.shape = append(rv.shape, hdr.dimLens[d])
			}
			vars = append(vars, rv)
		}
	}

	return assemble(vars, globals, hdr.dimLens, hdr.dimOrder)
}

// writeNetCDF4 stores ds as a netCDF-4 file: a classic file written with
// enc's precision is converted by nccopy, which applies deflate and
// shuffle to every chunked variable.
func writeNetCDF4(path string, ds *dataset.Dataset, enc Encoding) error {
	if err := checkDims(ds); err != nil {
		return err
	}
	if !ToolsAvailable() {
		return ErrToolsMissing
	}

	dir, err := os.MkdirTemp("", "ncio-")
	if err != nil {
		return err
	}
	defer func() { _ = os.RemoveAll(dir) }()

	tmp := filepath.Join(dir, "classic.nc")
	if err := writeClassic(tmp, ds, enc); err != nil {
		return err
	}

	args := []string{"-k", "nc4"}
	if enc.Deflate {
		args = append(args, "-d", strconv.Itoa(enc.Level))
		if enc.Shuffle {
			args = append(args, "-s")
		}
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	if _, err := runTool(nccopyTool, append(args, tmp, path)...); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// cdlVar is a variable declaration from an ncdump header.
type cdlVar struct {
	name  string
	typ   string
	dims  []string
	attrs map[string]string
}

// cdlHeader is the parsed output of "ncdump -h".
type cdlHeader struct {
	dimOrder []string
	dimLens  map[string]int
	vars     []cdlVar
	globals  map[string]string
}

func (h *cdlHeader) variable(name string) *cdlVar {
	for i := range h.vars {
		if h.vars[i].name == name {
			return &h.vars[i]
		}
	}
	return nil
}

// dumpHeader runs ncdump on path. With special set, storage attributes
// such as _DeflateLevel and _Shuffle are included.
func dumpHeader(path string, special bool) (*cdlHeader, error) {
	args := []string{"-h"}
	if special {
		args = append(args, "-s")
	}
	out, err := runTool(ncdumpTool, append(args, path)...)
	if err != nil {
		return nil, err
	}
	return parseCDLHeader(string(out))
}

var (
	cdlDimLine  = regexp.MustCompile(`^(.+?) = (UNLIMITED|\d+) ;(?:\s*// \((\d+) currently\))?$`)
	cdlVarLine  = regexp.MustCompile(`^([a-z0-9]+) ((?:\\.|[^\s(\\])+)(?:\((.*)\))? ;$`)
	cdlAttrLine = regexp.MustCompile(`^((?:\\.|[^:\\])*):((?:\\.|[^\s=\\])+) = (.*) ;$`)
)

// parseCDLHeader reads dimensions, variable declarations and attributes
// of the root group from ncdump header text.
func parseCDLHeader(text string) (*cdlHeader, error) {
	h := &cdlHeader{dimLens: make(map[string]int)}
	section := ""
	var pending string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "dimensions:", trimmed == "variables:", trimmed == "data:":
			section = strings.TrimSuffix(trimmed, ":")
			continue
		case strings.HasPrefix(trimmed, "// global attributes"):
			continue
		case strings.HasPrefix(trimmed, "group:"):
			// Nested groups are not read.
			section = "group"
			continue
		case trimmed == "" || strings.HasPrefix(trimmed, "netcdf ") || trimmed == "}":
			continue
		}

		if pending != "" {
			trimmed = pending + " " + trimmed
			pending = ""
		}
		if !strings.HasSuffix(trimmed, ";") && !strings.Contains(trimmed, " ; //") {
			pending = trimmed
			continue
		}

		switch section {
		case "dimensions":
			m := cdlDimLine.FindStringSubmatch(trimmed)
			if m == nil {
				return nil, fmt.Errorf("unrecognised dimension line %q", trimmed)
			}
			n := m[2]
			if n == "UNLIMITED" {
				n = m[3]
				if n == "" {
					n = "0"
				}
			}
			l, _ := strconv.Atoi(n)
			name := unescapeCDL(m[1])
			h.dimOrder = append(h.dimOrder, name)
			h.dimLens[name] = l
		case "variables":
			if m := cdlAttrLine.FindStringSubmatch(trimmed); m != nil {
				owner, key, val := unescapeCDL(m[1]), unescapeCDL(m[2]), cdlValueText(m[3])
				if owner == "" {
					if h.globals == nil {
						h.globals = make(map[string]string)
					}
					h.globals[key] = val
					continue
				}
				v := h.variable(owner)
				if v == nil {
					return nil, fmt.Errorf("attribute %s:%s of undeclared variable", owner, key)
				}
				if v.attrs == nil {
					v.attrs = make(map[string]string)
				}
				v.attrs[key] = val
				continue
			}
			m := cdlVarLine.FindStringSubmatch(trimmed)
			if m == nil {
				return nil, fmt.Errorf("unrecognised variable line %q", trimmed)
			}
			v := cdlVar{typ: m[1], name: unescapeCDL(m[2])}
			if m[3] != "" {
				for _, d := range strings.Split(m[3], ",") {
					v.dims = append(v.dims, unescapeCDL(strings.TrimSpace(d)))
				}
			}
			h.vars = append(h.vars, v)
		}
	}
	return h, nil
}

// unescapeCDL removes the backslashes ncdump puts before special
// characters in names.
func unescapeCDL(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// cdlValueText renders an attribute value as text: quoted pieces are
// joined, numeric lists lose their type suffixes.
func cdlValueText(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, `"`) {
		return strings.Join(scanCDLValues(raw), "")
	}
	var vals []float64
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		f, err := strconv.ParseFloat(strings.TrimRight(tok, "bBsSLUfF"), 64)
		if err != nil {
			f, err = strconv.ParseFloat(strings.TrimSuffix(tok, "f"), 64)
		}
		if err != nil {
			return raw
		}
		vals = append(vals, f)
	}
	return formatAttr(vals)
}

// dataSection returns the text after the "data:" line of ncdump output.
func dataSection(text string) string {
	i := strings.Index(text, "\ndata:\n")
	if i < 0 {
		return ""
	}
	return strings.TrimSuffix(strings.TrimSpace(text[i+len("\ndata:\n"):]), "}")
}

// parseCDLStrings reads `name = "a", "b" ;` entries of an ncdump data
// section. A bare "_" (fill) reads as an empty string.
func parseCDLStrings(data string) map[string][]string {
	out := make(map[string][]string)
	for len(data) > 0 {
		data = strings.TrimLeft(data, " \t\n")
		eq := strings.Index(data, " = ")
		if eq < 0 {
			break
		}
		name := unescapeCDL(strings.TrimSpace(data[:eq]))
		end := cdlStatementEnd(data[eq+3:])
		out[name] = scanCDLValues(data[eq+3 : eq+3+end])
		data = data[eq+3+end:]
		data = strings.TrimPrefix(data, ";")
	}
	return out
}

// cdlStatementEnd finds the ';' ending a value list outside quotes.
func cdlStatementEnd(s string) int {
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch {
		case inQuote && s[i] == '\\':
			i++
		case s[i] == '"':
			inQuote = !inQuote
		case !inQuote && s[i] == ';':
			return i
		}
	}
	return len(s)
}

// scanCDLValues splits a comma-separated value list, unquoting strings.
func scanCDLValues(s string) []string {
	var out []string
	for i := 0; i < len(s); {
		switch c := s[i]; {
		case c == ' ' || c == '\t' || c == '\n' || c == ',':
			i++
		case c == '"':
			var b strings.Builder
			i++
			for i < len(s) && s[i] != '"' {
				if s[i] == '\\' && i+1 < len(s) {
					i++
					switch s[i] {
					case 'n':
						b.WriteByte('\n')
					case 't':
						b.WriteByte('\t')
					default:
						b.WriteByte(s[i])
					}
				} else {
					b.WriteByte(s[i])
				}
				i++
			}
			i++
			out = append(out, b.String())
		default:
			j := i
			for j < len(s) && s[j] != ',' && s[j] != ' ' && s[j] != '\n' {
				j++
			}
			if tok := s[i:j]; tok == "_" {
				out = append(out, "")
			} else {
				out = append(out, tok)
			}
			i = j
		}
	}
	return out
}
