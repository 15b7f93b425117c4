// Package rapidflowutil wires the cobra/viper command surface for
// rapidflow's two entrypoints (the ECMWF ensemble controller and the
// land-surface-model deterministic controller), following the
// flag/viper-binding option-table convention used across the inmap
// command-line tooling.
package rapidflowutil

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Cfg holds every bound configuration value. In order of decreasing
// priority: CLI flag, RAPIDFLOW_-prefixed environment variable (option
// name upper-cased, dashes as underscores), config file, default.
var Cfg *viper.Viper

type option struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

// Options are the configuration values available across both rapidflow
// entrypoints.
var Options []option

func registerOptions(opts []option) {
	Cfg = viper.New()
	Cfg.SetEnvPrefix("RAPIDFLOW")
	Cfg.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	Cfg.AutomaticEnv()

	for _, o := range opts {
		if Cfg.IsSet(o.name) {
			continue
		}
		Cfg.SetDefault(o.name, o.defaultVal)
		for _, set := range o.flagsets {
			registerFlag(set, o)
			Cfg.BindPFlag(o.name, set.Lookup(o.name))
		}
	}
}

func registerFlag(set *pflag.FlagSet, o option) {
	switch v := o.defaultVal.(type) {
	case string:
		if o.shorthand == "" {
			set.String(o.name, v, o.usage)
		} else {
			set.StringP(o.name, o.shorthand, v, o.usage)
		}
	case []string:
		if o.shorthand == "" {
			set.StringSlice(o.name, v, o.usage)
		} else {
			set.StringSliceP(o.name, o.shorthand, v, o.usage)
		}
	case bool:
		if o.shorthand == "" {
			set.Bool(o.name, v, o.usage)
		} else {
			set.BoolP(o.name, o.shorthand, v, o.usage)
		}
	case int:
		if o.shorthand == "" {
			set.Int(o.name, v, o.usage)
		} else {
			set.IntP(o.name, o.shorthand, v, o.usage)
		}
	case float64:
		if o.shorthand == "" {
			set.Float64(o.name, v, o.usage)
		} else {
			set.Float64P(o.name, o.shorthand, v, o.usage)
		}
	default:
		panic(fmt.Sprintf("rapidflowutil: unsupported option default type %T for %q", v, o.name))
	}
}
