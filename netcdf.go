/*
Copyright © 2020 the InMAP authors.
This file is part of InMAP.

InMAP is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

InMAP is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with InMAP.  If not, see <http://www.gnu.org/licenses/>.
*/

package ncattrs

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ctessum/cdf"
)

// copyChunk is the maximum number of elements copied per read.
const copyChunk = 1 << 20

// reservedAttributes are global attribute names that the NetCDF
// libraries manage themselves.
var reservedAttributes = map[string]struct{}{
	"_Format":            {},
	"_IsNetcdf4":         {},
	"_SuperblockVersion": {},
	"_NCProperties":      {},
}

// Dataset is a NetCDF classic (or 64-bit offset) file opened for update.
//
// The NetCDF header cannot be grown in place, so SetAttributes writes
// a complete copy of the file with the new header to a temporary file,
// and Close copies it back over the contents of the opened file. The file
// keeps its identity (links, ownership and permissions), and the data
// section is rewritten exactly once per call to SetAttributes.
type Dataset struct {
	path string
	ff   *os.File
	f    *cdf.File
	size int64

	staged *os.File // rewritten copy waiting to be committed by Close.
	closed bool
}

// OpenNetCDF opens the NetCDF file at path for reading and writing.
func OpenNetCDF(path string) (*Dataset, error) {
	ff, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContainerOpen, err)
	}
	fi, err := ff.Stat()
	if err != nil {
		ff.Close()
		return nil, fmt.Errorf("%w: %v", ErrContainerOpen, err)
	}
	if !fi.Mode().IsRegular() {
		ff.Close()
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrContainerOpen, path)
	}
	f, err := cdf.Open(ff)
	if err != nil {
		ff.Close()
		return nil, fmt.Errorf("%w: %s is not a NetCDF classic file: %v", ErrContainerOpen, path, err)
	}
	if errs := f.Header.Check(); len(errs) > 0 {
		ff.Close()
		return nil, fmt.Errorf("%w: %s has an invalid header: %v", ErrContainerOpen, path, errs[0])
	}
	return &Dataset{
		path: path,
		ff:   ff,
		f:    f,
		size: fi.Size(),
	}, nil
}

// OpenContainer is an Opener for NetCDF files.
func OpenContainer(path string) (Container, error) {
	d, err := OpenNetCDF(path)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// GlobalAttributes returns the names of the global attributes currently
// in the file.
func (d *Dataset) GlobalAttributes() []string {
	return d.f.Header.Attributes("")
}

// GetAttribute returns the value of global attribute a, or nil if it
// does not exist. See cdf.Header.GetAttribute for the possible types.
func (d *Dataset) GetAttribute(a string) interface{} {
	return d.f.Header.GetAttribute("", a)
}

// SetAttributes sets all of attrs as global string attributes in a single
// header rewrite. Existing attributes with the same names are overwritten
// in place; new attributes are appended in name order. Either all
// attributes are written or, if an error is returned, none are.
// The changes are committed when the Dataset is closed.
func (d *Dataset) SetAttributes(attrs Attributes) (err error) {
	if d.closed {
		return fmt.Errorf("%w: %s is closed", ErrContainerWrite, d.path)
	}
	if d.staged != nil {
		return fmt.Errorf("%w: attributes have already been set on %s", ErrContainerWrite, d.path)
	}
	for _, name := range attrs.Names() {
		if err := checkAttributeName(name); err != nil {
			return fmt.Errorf("%w: %v", ErrContainerWrite, err)
		}
	}

	h, err := d.header(attrs)
	if err != nil {
		return err
	}

	pattern := "." + filepath.Base(d.path) + ".*"
	tmp, err := os.CreateTemp(filepath.Dir(d.path), pattern)
	if err != nil {
		// The directory may be read-only even though the file is not.
		if tmp, err = os.CreateTemp("", pattern); err != nil {
			return fmt.Errorf("%w: %v", ErrContainerWrite, err)
		}
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()
	if err = d.rewrite(tmp, h); err != nil {
		return fmt.Errorf("%w: rewriting %s: %v", ErrContainerWrite, d.path, err)
	}
	d.staged = tmp
	return nil
}

// header returns a new header containing everything in the current
// header plus attrs.
func (d *Dataset) header(attrs Attributes) (h *cdf.Header, err error) {
	// cdf reports misuse of mutable headers by panicking.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: building header: %v", ErrContainerWrite, r)
		}
	}()
	old := d.f.Header
	h = cdf.NewHeader(old.Dimensions(""), old.Lengths(""))
	for _, v := range old.Variables() {
		h.AddVariable(v, old.Dimensions(v), old.ZeroValue(v, 0))
		for _, a := range old.Attributes(v) {
			h.AddAttribute(v, a, old.GetAttribute(v, a))
		}
	}
	existing := make(map[string]struct{})
	for _, a := range old.Attributes("") {
		existing[a] = struct{}{}
		if val, ok := attrs[a]; ok {
			h.AddAttribute("", a, val)
			continue
		}
		h.AddAttribute("", a, old.GetAttribute("", a))
	}
	for _, a := range attrs.Names() {
		if _, ok := existing[a]; !ok {
			h.AddAttribute("", a, attrs[a])
		}
	}
	if len(old.Variables()) > 0 {
		h.Define()
	}
	if errs := h.Check(); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrContainerWrite, errs[0])
	}
	return h, nil
}

// rewrite writes header h followed by all of the variable data in d to w.
func (d *Dataset) rewrite(w *os.File, h *cdf.Header) error {
	if len(h.Variables()) == 0 {
		return writeBareHeader(w, h)
	}
	nf, err := cdf.Create(w, h)
	if err != nil {
		return err
	}
	nrecs := d.f.Header.NumRecs(d.size)
	for _, v := range d.f.Header.Variables() {
		if err := copyVariable(nf, d.f, v, nrecs); err != nil {
			return fmt.Errorf("variable %s: %v", v, err)
		}
	}
	return cdf.UpdateNumRecs(w)
}

// writeBareHeader writes a header that has no variables. cdf cannot
// Define such a header, so it is encoded while still mutable and marked
// as the classic format.
func writeBareHeader(w *os.File, h *cdf.Header) error {
	var buf bytes.Buffer
	if err := h.WriteHeader(&buf); err != nil {
		return err
	}
	b := buf.Bytes()
	b[3] = 1
	if _, err := w.WriteAt(b, 0); err != nil {
		return err
	}
	return cdf.UpdateNumRecs(w)
}

// copyVariable copies the data for variable v from src to dst.
// Record variables are copied for the first nrecs records.
func copyVariable(dst, src *cdf.File, v string, nrecs int64) error {
	lengths := src.Header.Lengths(v)
	n := int64(1)
	var end []int
	if src.Header.IsRecordVariable(v) {
		if nrecs <= 0 {
			return nil
		}
		end = make([]int, len(lengths))
		end[0] = int(nrecs) - 1
		n = nrecs
		for i := 1; i < len(lengths); i++ {
			end[i] = lengths[i] - 1
			n *= int64(lengths[i])
		}
	} else {
		for _, l := range lengths {
			n *= int64(l)
		}
	}

	r := src.Reader(v, nil, end)
	w := dst.Writer(v, nil, nil)
	for n > 0 {
		k := n
		if k > copyChunk {
			k = copyChunk
		}
		buf := r.Zero(int(k))
		if _, err := r.Read(buf); err != nil {
			return err
		}
		n -= k
		// Writers for fixed-size variables report io.EOF once the last
		// element has been written.
		if _, err := w.Write(buf); err != nil && !(err == io.EOF && n == 0) {
			return err
		}
	}
	return nil
}

// Close commits any attributes set by SetAttributes and releases the file.
func (d *Dataset) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	var err error
	if tmp := d.staged; tmp != nil {
		d.staged = nil
		err = d.commit(tmp)
		tmp.Close()
		os.Remove(tmp.Name())
	}
	if cerr := d.ff.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("%w: updating %s: %v", ErrContainerClose, d.path, err)
	}
	return nil
}

// commit replaces the contents of the opened file with the contents of src
// and flushes them to disk.
func (d *Dataset) commit(src *os.File) error {
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := d.ff.Seek(0, io.SeekStart); err != nil {
		return err
	}
	n, err := io.Copy(d.ff, src)
	if err != nil {
		return err
	}
	if err := d.ff.Truncate(n); err != nil {
		return err
	}
	return d.ff.Sync()
}

// checkAttributeName returns an error if name cannot be used as a
// global attribute name in a NetCDF file.
func checkAttributeName(name string) error {
	if name == "" {
		return fmt.Errorf("empty attribute name")
	}
	if _, ok := reservedAttributes[name]; ok {
		return fmt.Errorf("attribute name %q is reserved", name)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("attribute name %q is not valid UTF-8", name)
	}
	first, _ := utf8.DecodeRuneInString(name)
	if first < utf8.RuneSelf && !(first == '_' || unicode.IsLetter(first) || unicode.IsDigit(first)) {
		return fmt.Errorf("attribute name %q must start with a letter, digit or underscore", name)
	}
	for _, c := range name {
		if c == '/' || unicode.IsControl(c) {
			return fmt.Errorf("attribute name %q contains invalid character %q", name, c)
		}
	}
	if strings.TrimRightFunc(name, unicode.IsSpace) != name {
		return fmt.Errorf("attribute name %q ends with white space", name)
	}
	return nil
}
