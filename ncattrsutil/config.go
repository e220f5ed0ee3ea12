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

package ncattrsutil

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spatialmodel/ncattrs"
	"github.com/spf13/cast"
)

// runOptions builds the options for a single run from Cfg and the
// command-line arguments. The returned function removes any files that were
// downloaded and must be called once the run is finished.
func runOptions(ctx context.Context, netcdfFile, attributesFile string) (*ncattrs.Options, func(), error) {
	nop := func() {}
	force, err := getBool("force")
	if err != nil {
		return nil, nop, err
	}
	caseSensitive, err := getBool("CaseSensitiveKeys")
	if err != nil {
		return nil, nop, err
	}
	r, err := resolver()
	if err != nil {
		return nil, nop, err
	}
	attributesFile, cleanup, err := maybeDownload(ctx, os.ExpandEnv(attributesFile))
	if err != nil {
		return nil, nop, err
	}
	return &ncattrs.Options{
		NetCDFFile: os.ExpandEnv(netcdfFile),
		ConfigFile: attributesFile,
		Force:      force,
		Load:       ncattrs.LoadOptions{CaseSensitive: caseSensitive},
		Resolver:   r,
		Log:        Log,
	}, cleanup, nil
}

// resolver returns the placeholder resolver specified by the
// TimeZoneLabel and TimeZone options.
func resolver() (*ncattrs.Resolver, error) {
	r := ncattrs.NewResolver()
	r.ZoneLabel = Cfg.GetString("TimeZoneLabel")
	if tz := Cfg.GetString("TimeZone"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("ncattrs: TimeZone: %v", err)
		}
		r.Location = loc
	}
	return r, nil
}

// getBool returns the boolean option name, returning an error rather
// than false if the value (for example from an environment variable)
// cannot be interpreted as a boolean.
func getBool(name string) (bool, error) {
	b, err := cast.ToBoolE(Cfg.Get(name))
	if err != nil {
		return false, fmt.Errorf("ncattrs: %s: %v", name, err)
	}
	return b, nil
}
