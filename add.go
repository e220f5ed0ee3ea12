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
	"io/ioutil"
	"strings"

	"github.com/sirupsen/logrus"
)

// A Container is a file whose global attributes can be set in bulk.
type Container interface {
	// GlobalAttributes returns the names of the attributes
	// already present.
	GlobalAttributes() []string

	// SetAttributes sets all of the given attributes in one operation.
	SetAttributes(Attributes) error

	// Close commits any changes and releases the container.
	Close() error
}

// An Opener opens the container at path for update.
type Opener func(path string) (Container, error)

// Options specify a single run of AddAttributes.
type Options struct {
	// NetCDFFile is the path to the file that attributes are added to.
	NetCDFFile string

	// ConfigFile is the path to the INI-style attributes configuration.
	ConfigFile string

	// Force marks overwriting attributes that are already present as
	// expected. Existing attributes are overwritten either way; without
	// Force each overwrite is reported as a warning.
	Force bool

	// Load controls how ConfigFile is read.
	Load LoadOptions

	// Resolver replaces placeholder values. If nil, NewResolver() is used.
	Resolver *Resolver

	// Open opens NetCDFFile. If nil, OpenContainer is used.
	Open Opener

	// Log receives progress messages. If nil, nothing is logged.
	Log logrus.FieldLogger
}

// AddAttributes reads the attributes in o.ConfigFile, resolves any
// placeholders, and writes all of them to o.NetCDFFile with a single
// call to SetAttributes. The configuration is read before the NetCDF file
// is opened, so a missing or malformed configuration leaves the NetCDF
// file untouched. Once opened, the NetCDF file is always closed.
// The attributes that were written are returned.
func AddAttributes(o *Options) (attrs Attributes, err error) {
	log := o.Log
	if log == nil {
		l := logrus.New()
		l.Out = ioutil.Discard
		log = l
	}
	resolver := o.Resolver
	if resolver == nil {
		resolver = NewResolver()
	}
	open := o.Open
	if open == nil {
		open = OpenContainer
	}

	raw, err := LoadAttributes(o.ConfigFile, o.Load)
	if err != nil {
		return nil, err
	}
	log.WithField("config", o.ConfigFile).Debugf("read %d attributes", len(raw))

	c, err := open(o.NetCDFFile)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil && err == nil {
			attrs, err = nil, cerr
		}
	}()

	attrs, err = resolver.Resolve(raw, o.NetCDFFile)
	if err != nil {
		return nil, err
	}

	var present []string
	for _, name := range c.GlobalAttributes() {
		if _, ok := attrs[name]; ok {
			present = append(present, name)
		}
	}
	if len(present) > 0 {
		entry := log.WithField("names", strings.Join(present, ", "))
		if o.Force {
			entry.Debug("overwriting existing attributes")
		} else {
			entry.Warn("overwriting existing attributes")
		}
	}

	for _, name := range attrs.Names() {
		log.WithFields(logrus.Fields{"name": name, "value": attrs[name]}).Info("setting attribute")
	}
	if err = c.SetAttributes(attrs); err != nil {
		return nil, err
	}
	log.WithField("file", o.NetCDFFile).Infof("set %d attributes", len(attrs))
	return attrs, nil
}
