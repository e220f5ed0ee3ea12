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

// Package ncattrs adds a bulk set of global attributes to a NetCDF file.
//
// Attributes live in the header of a NetCDF file, so adding one requires
// everything below the header to be shifted to make room for it. Adding
// attributes one at a time repeats that work for every attribute;
// this package collects all of them from a configuration file and writes
// them with a single header rewrite.
package ncattrs

import (
	"errors"
	"sort"
)

// Version gives the version number.
const Version = "1.0.0"

// Attributes maps global attribute names to their values.
type Attributes map[string]string

// Names returns the attribute names in sorted order.
func (a Attributes) Names() []string {
	names := make([]string, 0, len(a))
	for k := range a {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// These errors can be matched with errors.Is against any error returned
// by this package.
var (
	// ErrConfigNotFound is returned when the attributes configuration
	// path does not refer to a regular file.
	ErrConfigNotFound = errors.New("ncattrs: attributes configuration file not found")

	// ErrConfigParse is returned when the attributes configuration file
	// is malformed.
	ErrConfigParse = errors.New("ncattrs: malformed attributes configuration file")

	// ErrContainerOpen is returned when the NetCDF file cannot be opened
	// for writing or is not a valid NetCDF file.
	ErrContainerOpen = errors.New("ncattrs: cannot open NetCDF file")

	// ErrContainerWrite is returned when the bulk attribute set fails.
	// No attributes are written when it occurs.
	ErrContainerWrite = errors.New("ncattrs: cannot set attributes")

	// ErrContainerClose is returned when flushing or closing the NetCDF
	// file fails.
	ErrContainerClose = errors.New("ncattrs: cannot close NetCDF file")
)
