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
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ctessum/cdf"
)

// createTestFile writes a small NetCDF file with fixed-size, character
// and record variables to path.
func createTestFile(t *testing.T, path string) {
	t.Helper()
	h := cdf.NewHeader([]string{"time", "x"}, []int{0, 3})
	h.AddVariable("x", []string{"x"}, []float64{0})
	h.AddAttribute("x", "units", "m")
	h.AddVariable("label", []string{"x"}, "")
	h.AddVariable("temp", []string{"time", "x"}, []float32{0})
	h.AddAttribute("temp", "units", "K")
	h.AddAttribute("", "title", "old title")
	h.AddAttribute("", "version", []int32{3})
	h.Define()

	ff, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer ff.Close()
	f, err := cdf.Create(ff, h)
	if err != nil {
		t.Fatal(err)
	}
	for v, data := range map[string]interface{}{
		"x":     []float64{1, 2, 3},
		"label": []byte("abc"),
		"temp":  []float32{1, 2, 3, 4, 5, 6},
	} {
		if _, err := f.Writer(v, nil, nil).Write(data); err != nil && err != io.EOF {
			t.Fatal(err)
		}
	}
	if err := cdf.UpdateNumRecs(ff); err != nil {
		t.Fatal(err)
	}
}

// createEmptyFile writes a NetCDF file with no dimensions, variables
// or attributes to path.
func createEmptyFile(t *testing.T, path string) {
	t.Helper()
	b := append([]byte("CDF\x01"), make([]byte, 28)...)
	if err := os.WriteFile(path, b, 0644); err != nil {
		t.Fatal(err)
	}
}

func readVariable(t *testing.T, f *cdf.File, v string, end []int, n int) interface{} {
	t.Helper()
	r := f.Reader(v, nil, end)
	buf := r.Zero(n)
	if _, err := r.Read(buf); err != nil {
		t.Fatalf("reading %s: %v", v, err)
	}
	return buf
}

func openTestFile(t *testing.T, path string) (*cdf.File, func()) {
	t.Helper()
	ff, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	f, err := cdf.Open(ff)
	if err != nil {
		ff.Close()
		t.Fatal(err)
	}
	return f, func() { ff.Close() }
}

func TestDatasetSetAttributes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.nc")
	createTestFile(t, path)
	if err := os.Chmod(path, 0640); err != nil {
		t.Fatal(err)
	}

	d, err := OpenNetCDF(path)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := d.GlobalAttributes(), []string{"title", "version"}; !reflect.DeepEqual(have, want) {
		t.Errorf("attributes: %v != %v", have, want)
	}
	if err := d.SetAttributes(Attributes{"title": "new title", "institution": "UMN", "author": "B"}); err != nil {
		t.Fatal(err)
	}
	if err := d.SetAttributes(Attributes{"x": "y"}); !errors.Is(err, ErrContainerWrite) {
		t.Errorf("second bulk set: want ErrContainerWrite, have %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}

	f, done := openTestFile(t, path)
	defer done()

	if have, want := f.Header.Attributes(""), []string{"title", "version", "author", "institution"}; !reflect.DeepEqual(have, want) {
		t.Errorf("attributes: %v != %v", have, want)
	}
	for a, want := range map[string]interface{}{
		"title":       "new title",
		"version":     []int32{3},
		"author":      "B",
		"institution": "UMN",
	} {
		if have := f.Header.GetAttribute("", a); !reflect.DeepEqual(have, want) {
			t.Errorf("%s: %#v != %#v", a, have, want)
		}
	}
	if have := f.Header.GetAttribute("temp", "units"); have != "K" {
		t.Errorf("temp units: %v", have)
	}
	if have := f.Header.GetAttribute("x", "units"); have != "m" {
		t.Errorf("x units: %v", have)
	}

	if have, want := readVariable(t, f, "x", nil, 3), []float64{1, 2, 3}; !reflect.DeepEqual(have, want) {
		t.Errorf("x: %v != %v", have, want)
	}
	if have, want := readVariable(t, f, "label", nil, 3), []byte("abc"); !reflect.DeepEqual(have, want) {
		t.Errorf("label: %v != %v", have, want)
	}
	if have, want := readVariable(t, f, "temp", []int{1, 2}, 6), []float32{1, 2, 3, 4, 5, 6}; !reflect.DeepEqual(have, want) {
		t.Errorf("temp: %v != %v", have, want)
	}

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm() != 0640 {
		t.Errorf("mode: %v", fi.Mode())
	}
	if f.Header.NumRecs(fi.Size()) != 2 {
		t.Errorf("records: %d", f.Header.NumRecs(fi.Size()))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %v", entries)
	}
}

func TestDatasetEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.nc")
	createEmptyFile(t, path)

	d, err := OpenNetCDF(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.SetAttributes(Attributes{"title": "Test Dataset"}); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}

	f, done := openTestFile(t, path)
	defer done()
	if have := f.Header.GetAttribute("", "title"); have != "Test Dataset" {
		t.Errorf("title: %#v", have)
	}
}

func TestDatasetLinks(t *testing.T) {
	for _, test := range []struct {
		name string
		link func(oldname, newname string) error
	}{
		{name: "symlink", link: os.Symlink},
		{name: "hard link", link: os.Link},
	} {
		t.Run(test.name, func(t *testing.T) {
			dir := t.TempDir()
			target := filepath.Join(dir, "target.nc")
			link := filepath.Join(dir, "link.nc")
			createTestFile(t, target)
			if err := test.link(target, link); err != nil {
				t.Skip(err)
			}
			before, err := os.Lstat(link)
			if err != nil {
				t.Fatal(err)
			}

			d, err := OpenNetCDF(link)
			if err != nil {
				t.Fatal(err)
			}
			if err := d.SetAttributes(Attributes{"author": "B"}); err != nil {
				t.Fatal(err)
			}
			if err := d.Close(); err != nil {
				t.Fatal(err)
			}

			after, err := os.Lstat(link)
			if err != nil {
				t.Fatal(err)
			}
			if before.Mode().Type() != after.Mode().Type() {
				t.Errorf("link type changed from %v to %v", before.Mode().Type(), after.Mode().Type())
			}
			for _, path := range []string{target, link} {
				f, done := openTestFile(t, path)
				if have := f.Header.GetAttribute("", "author"); have != "B" {
					t.Errorf("%s: author = %#v", filepath.Base(path), have)
				}
				if have, want := readVariable(t, f, "x", nil, 3), []float64{1, 2, 3}; !reflect.DeepEqual(have, want) {
					t.Errorf("%s: x: %v != %v", filepath.Base(path), have, want)
				}
				done()
			}
			rfi, err := os.Stat(target)
			if err != nil {
				t.Fatal(err)
			}
			lfi, err := os.Stat(link)
			if err != nil {
				t.Fatal(err)
			}
			if !os.SameFile(rfi, lfi) {
				t.Error("link no longer refers to the same file")
			}
		})
	}
}

func TestDatasetNoAttributes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.nc")
	createTestFile(t, path)

	d, err := OpenNetCDF(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.SetAttributes(Attributes{}); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}

	f, done := openTestFile(t, path)
	defer done()
	if have, want := f.Header.Attributes(""), []string{"title", "version"}; !reflect.DeepEqual(have, want) {
		t.Errorf("attributes: %v != %v", have, want)
	}
	if have, want := readVariable(t, f, "x", nil, 3), []float64{1, 2, 3}; !reflect.DeepEqual(have, want) {
		t.Errorf("x: %v != %v", have, want)
	}
}

func TestDatasetInvalidName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.nc")
	createTestFile(t, path)
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"_NCProperties", "a/b", "-flag", "trailing ", "tab\there"} {
		t.Run(name, func(t *testing.T) {
			d, err := OpenNetCDF(path)
			if err != nil {
				t.Fatal(err)
			}
			err = d.SetAttributes(Attributes{"title": "ok", name: "value"})
			if !errors.Is(err, ErrContainerWrite) {
				t.Errorf("want ErrContainerWrite, have %v", err)
			}
			if err := d.Close(); err != nil {
				t.Fatal(err)
			}
			after, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(before, after) {
				t.Error("file was modified")
			}
		})
	}
}

func TestOpenNetCDFErrors(t *testing.T) {
	dir := t.TempDir()
	t.Run("missing", func(t *testing.T) {
		if _, err := OpenNetCDF(filepath.Join(dir, "missing.nc")); !errors.Is(err, ErrContainerOpen) {
			t.Errorf("want ErrContainerOpen, have %v", err)
		}
	})
	t.Run("not netcdf", func(t *testing.T) {
		path := filepath.Join(dir, "text.nc")
		if err := os.WriteFile(path, []byte("this is not a NetCDF file"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := OpenNetCDF(path); !errors.Is(err, ErrContainerOpen) {
			t.Errorf("want ErrContainerOpen, have %v", err)
		}
	})
	t.Run("directory", func(t *testing.T) {
		if _, err := OpenNetCDF(dir); !errors.Is(err, ErrContainerOpen) {
			t.Errorf("want ErrContainerOpen, have %v", err)
		}
	})
}

func TestCheckAttributeName(t *testing.T) {
	for _, name := range []string{"title", "_private", "2d_field", "Conventions", "température", "with space"} {
		if err := checkAttributeName(name); err != nil {
			t.Errorf("%q: %v", name, err)
		}
	}
	for _, name := range []string{"", "_Format", "a/b", ".hidden", "end\n"} {
		if err := checkAttributeName(name); err == nil {
			t.Errorf("%q: expected an error", name)
		}
	}
}
