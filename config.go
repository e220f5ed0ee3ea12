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
	"fmt"
	"io/ioutil"
	"os"
	"regexp"
	"strings"

	"github.com/go-ini/ini"
)

// LoadOptions control how an attributes configuration file is read.
type LoadOptions struct {
	// CaseSensitive keeps attribute names as written. By default names
	// are lower-cased.
	CaseSensitive bool
}

// CheckConfigFile returns ErrConfigNotFound if path does not refer to
// a regular file.
func CheckConfigFile(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfigNotFound, err)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrConfigNotFound, path)
	}
	return nil
}

// maxInterpolationDepth limits how deeply %(name)s references may nest.
const maxInterpolationDepth = 10

var referencePattern = regexp.MustCompile(`^%\(([^)]+)\)s`)

// LoadAttributes reads the INI-style configuration file at path and
// merges the keys of all of its sections into a single set of attributes.
// Section names are discarded; when the same key appears in more than one
// section the value from the last section wins. Keys in the DEFAULT section
// (or before the first section header) are inherited by every other section.
//
// Values may continue onto indented lines and may refer to other keys in
// the same section or DEFAULT with %(name)s; %% is a literal percent sign.
// A key repeated within one section is an error.
func LoadAttributes(path string, o LoadOptions) (Attributes, error) {
	if err := CheckConfigFile(path); err != nil {
		return nil, err
	}
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigNotFound, err)
	}
	// Indented continuation lines are only recognized when they end with
	// a newline.
	if len(b) > 0 && b[len(b)-1] != '\n' {
		b = append(b, '\n')
	}
	f, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:        true,
		IgnoreContinuation:         true,
		AllowPythonMultilineValues: true,
		AllowShadows:               true,
	}, b)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigParse, path, err)
	}

	name := func(n string) string {
		if o.CaseSensitive {
			return n
		}
		return strings.ToLower(n)
	}
	// raw returns the uninterpolated values of the keys in sec.
	raw := func(sec *ini.Section) (map[string]string, error) {
		m := make(map[string]string)
		for _, k := range sec.Keys() {
			n := name(k.Name())
			if _, ok := m[n]; ok || len(k.ValueWithShadows()) > 1 {
				return nil, fmt.Errorf("%w: %s: key %q is repeated in section %q", ErrConfigParse, path, n, sec.Name())
			}
			m[n] = k.Value()
		}
		return m, nil
	}

	defaults, err := raw(f.Section(ini.DEFAULT_SECTION))
	if err != nil {
		return nil, err
	}
	attrs := make(Attributes)
	for _, sec := range f.Sections() {
		vars := make(map[string]string, len(defaults))
		for k, v := range defaults {
			vars[k] = v
		}
		if sec.Name() != ini.DEFAULT_SECTION {
			own, err := raw(sec)
			if err != nil {
				return nil, err
			}
			for k, v := range own {
				vars[k] = v
			}
		}
		for k, v := range vars {
			val, err := interpolate(k, v, vars, name, 1)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: section %q: %v", ErrConfigParse, path, sec.Name(), err)
			}
			attrs[k] = val
		}
	}
	return attrs, nil
}

// interpolate expands the %(name)s references in value, the value of key,
// from vars. Reference names are normalized with name before lookup.
func interpolate(key, value string, vars map[string]string, name func(string) string, depth int) (string, error) {
	if depth > maxInterpolationDepth {
		return "", fmt.Errorf("references in key %q are nested too deeply", key)
	}
	var b strings.Builder
	rest := value
	for {
		i := strings.IndexByte(rest, '%')
		if i < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		b.WriteString(rest[:i])
		rest = rest[i:]
		switch {
		case strings.HasPrefix(rest, "%%"):
			b.WriteByte('%')
			rest = rest[2:]
		case strings.HasPrefix(rest, "%("):
			m := referencePattern.FindStringSubmatch(rest)
			if m == nil {
				return "", fmt.Errorf("bad reference in key %q: %q", key, rest)
			}
			rest = rest[len(m[0]):]
			v, ok := vars[name(m[1])]
			if !ok {
				return "", fmt.Errorf("key %q refers to undefined key %q", key, m[1])
			}
			if strings.Contains(v, "%") {
				var err error
				if v, err = interpolate(key, v, vars, name, depth+1); err != nil {
					return "", err
				}
			}
			b.WriteString(v)
		default:
			return "", fmt.Errorf("'%%' in key %q must be followed by '%%' or '('", key)
		}
	}
}
