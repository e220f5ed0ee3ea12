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
	"os"
	"time"
)

// CreationDate is the placeholder value that is replaced with the
// modification time of the NetCDF file.
const CreationDate = "creation_date()"

// DefaultZoneLabel is the time zone label written into creation dates
// when none is configured.
const DefaultZoneLabel = "MDT"

// A Resolver replaces placeholder values with values computed
// from the NetCDF file.
type Resolver struct {
	// ZoneLabel is written verbatim in place of a time zone
	// abbreviation. It is not derived from Location.
	ZoneLabel string

	// Location is the time zone the clock fields are rendered in.
	// If nil, local time is used.
	Location *time.Location
}

// NewResolver returns a Resolver that labels creation dates with
// DefaultZoneLabel and renders them in local time.
func NewResolver() *Resolver {
	return &Resolver{ZoneLabel: DefaultZoneLabel}
}

// FormatCreationDate formats t like "Thu Jun 25 14:03:10 MDT 2020",
// with the zone label replaced by r.ZoneLabel.
func (r *Resolver) FormatCreationDate(t time.Time) string {
	loc := r.Location
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	// The label is kept out of the layout so it can never be read as a
	// layout element.
	return t.Format("Mon Jan 02 15:04:05") + " " + r.ZoneLabel + " " + t.Format("2006")
}

// CreationDate returns the formatted modification time of the file at path.
func (r *Resolver) CreationDate(path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("ncattrs: determining creation date: %v", err)
	}
	return r.FormatCreationDate(fi.ModTime()), nil
}

// Resolve returns a copy of attrs in which every value equal to
// CreationDate is replaced by the creation date of the file at path.
// The file is only examined if a placeholder is present.
func (r *Resolver) Resolve(attrs Attributes, path string) (Attributes, error) {
	o := make(Attributes, len(attrs))
	var date string
	for k, v := range attrs {
		if v != CreationDate {
			o[k] = v
			continue
		}
		if date == "" {
			var err error
			if date, err = r.CreationDate(path); err != nil {
				return nil, err
			}
		}
		o[k] = date
	}
	return o, nil
}
