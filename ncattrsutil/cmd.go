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

// Package ncattrsutil contains the command-line interface for ncattrs.
package ncattrsutil

import (
	"context"
	"fmt"
	"time"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/ncattrs"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

// Log is the logger used by the commands.
var Log = logrus.New()

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to ncattrs.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the location of a configuration file holding
              any of the options below.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "force",
			usage: `
              force marks overwriting attributes that are already present in
              the NetCDF file as expected. Existing attributes are overwritten
              either way; without force each overwrite is logged as a warning.`,
			shorthand:  "f",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.Flags()},
		},
		{
			name: "TimeZoneLabel",
			usage: `
              TimeZoneLabel is the time zone label written into creation_date()
              values. It is written as given and is not derived from TimeZone.`,
			defaultVal: ncattrs.DefaultZoneLabel,
			flagsets:   []*pflag.FlagSet{Root.Flags()},
		},
		{
			name: "TimeZone",
			usage: `
              TimeZone is the IANA name of the time zone (for example
              "America/Denver") that creation_date() values are rendered in.
              If empty, the local time zone is used.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.Flags()},
		},
		{
			name: "CaseSensitiveKeys",
			usage: `
              CaseSensitiveKeys keeps attribute names as they are written in the
              attributes configuration file. By default they are lower-cased.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.Flags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel is the minimum level of log messages to print.
              Valid values are "debug", "info", "warning", and "error".`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("NCATTRS")
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}

	Root.AddCommand(versionCmd)
}

// setConfig finds and reads in the configuration file, if there is one,
// and sets up logging.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("ncattrs: problem reading configuration file: %v", err)
		}
	}
	lvl, err := logrus.ParseLevel(Cfg.GetString("LogLevel"))
	if err != nil {
		return fmt.Errorf("ncattrs: LogLevel: %v", err)
	}
	Log.SetLevel(lvl)
	Log.Formatter = &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
		DisableSorting:  true,
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "ncattrs <netcdf-file> <attributes-config-file>",
	Short: "Add a bulk set of attributes to a NetCDF file.",
	Long: `ncattrs adds the keys in an INI-style attributes configuration file to a
NetCDF file as global attributes. All sections of the configuration file are
merged; section names are ignored. A value of creation_date() is replaced with
the modification time of the NetCDF file.

Because attributes live in the header of a NetCDF file, adding an attribute
requires everything below the header to be rewritten. ncattrs adds all of
the attributes at once so that this only happens once.

Options can be set with command-line arguments, a configuration file given with
the --config flag, or environment variables in the format 'NCATTRS_var' where
'var' is the name of the option.`,
	Args:              cobra.ExactArgs(2),
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
	RunE: func(cmd *cobra.Command, args []string) error {
		o, cleanup, err := runOptions(context.Background(), args[0], args[1])
		if err != nil {
			return err
		}
		defer cleanup()
		_, err = ncattrs.AddAttributes(o)
		return err
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of ncattrs.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("ncattrs v%s\n", ncattrs.Version)
	},
	DisableAutoGenTag: true,
}
