package rapidflowutil

import (
	"fmt"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/erdc/rapidflow/rferrors"
)

// Root is the shared parent command; both entrypoint binaries execute it
// with the same subcommands, setting only its Use name.
var Root = &cobra.Command{
	Use:               "rapidflow",
	Short:             "ensemble and deterministic streamflow forecast cycle controller",
	Long:              `rapidflow ingests routed runoff, runs RAPID routing per ensemble member or deterministic LSM run, assimilates initial conditions, and publishes forecast products.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgPath := Cfg.GetString("config"); cfgPath != "" {
			Cfg.SetConfigFile(cfgPath)
			if err := Cfg.ReadInConfig(); err != nil {
				return fmt.Errorf("rapidflow: reading configuration file: %w", err)
			}
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run one forecast cycle to completion",
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "poll for new upstream cycles and process each as it becomes available",
}

var resetLockCmd = &cobra.Command{
	Use:   "reset-lock",
	Short: "clear a stale running lock after an unclean shutdown, preserving the recorded watermark",
}

var versionCmd = &cobra.Command{
	Use: "version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("rapidflow dev")
	},
}

func init() {
	registerOptions(commonOptions(Root.PersistentFlags(), runCmd.Flags(), watchCmd.Flags()))

	Root.AddCommand(versionCmd)
	Root.AddCommand(runCmd)
	Root.AddCommand(watchCmd)
	Root.AddCommand(resetLockCmd)
}

// commonOptions is the configuration surface shared by both rapidflow
// entrypoints: storage locations, concurrency, and the dispatch backend.
// Both binaries (cmd/rapidflow-ecmwf, cmd/rapidflow-lsm) use this table
// unchanged; neither adds options of its own.
func commonOptions(root, run, watch *pflag.FlagSet) []option {
	return []option{
		{
			name: "config", usage: "path to a YAML/TOML/JSON configuration file", defaultVal: "",
			flagsets: []*pflag.FlagSet{root},
		},
		{
			name: "log-level", usage: "logrus level: trace, debug, info, warn, error", defaultVal: "info",
			flagsets: []*pflag.FlagSet{root},
		},
		{
			name: "source", usage: "upstream release source: s3:// URL or a local directory path", defaultVal: "",
			flagsets: []*pflag.FlagSet{run, watch},
		},
		{
			name: "output-bucket", usage: "gocloud.dev blob URL (e.g. s3://bucket or file:///path) for published Qout/warning products", defaultVal: "",
			flagsets: []*pflag.FlagSet{run, watch},
		},
		{
			name: "work-dir", usage: "scratch directory for per-cycle intermediate files", defaultVal: "/tmp/rapidflow",
			flagsets: []*pflag.FlagSet{run, watch},
		},
		{
			name: "lockfile", usage: "path to the exactly-once progress lockfile", defaultVal: "/var/run/rapidflow/lock.json",
			flagsets: []*pflag.FlagSet{run, watch, resetLockCmd.Flags()},
		},
		{
			name: "grid-catalog", usage: "path to the grid catalog TOML file", defaultVal: "",
			flagsets: []*pflag.FlagSet{run, watch},
		},
		{
			name: "weight-table-dir", usage: "directory of per-region weight table CSVs", defaultVal: "",
			flagsets: []*pflag.FlagSet{run, watch},
		},
		{
			name: "regions-file", usage: "path to the TOML region manifest (connectivity/weight table/return-period files per region)", defaultVal: "",
			flagsets: []*pflag.FlagSet{run, watch},
		},
		{
			name: "rapid-executable", usage: "path to the RAPID routing kernel binary", defaultVal: "rapid",
			flagsets: []*pflag.FlagSet{run, watch},
		},
		{
			name: "dispatch-backend", usage: "job dispatch backend: local or k8s", defaultVal: "local",
			flagsets: []*pflag.FlagSet{run, watch},
		},
		{
			name: "concurrency", usage: "maximum concurrent member jobs for the local dispatch backend", defaultVal: 4,
			flagsets: []*pflag.FlagSet{run, watch},
		},
		{
			name: "k8s-namespace", usage: "Kubernetes namespace for the k8s dispatch backend", defaultVal: "rapidflow",
			flagsets: []*pflag.FlagSet{run, watch},
		},
		{
			name: "k8s-image", usage: "container image used for k8s dispatch backend member jobs", defaultVal: "",
			flagsets: []*pflag.FlagSet{run, watch},
		},
		{
			name: "regions", usage: "comma-separated region tags to process this cycle; empty means all configured regions", defaultVal: []string{},
			flagsets: []*pflag.FlagSet{run, watch},
		},
		{
			name: "poll-interval-seconds", usage: "seconds between upstream polls in watch mode", defaultVal: 300,
			flagsets: []*pflag.FlagSet{watch},
		},
		{
			name: "measurement-cache", usage: "path to the SQLite USGS gage measurement cache", defaultVal: "/var/lib/rapidflow/measure.db",
			flagsets: []*pflag.FlagSet{run, watch},
		},
		{
			name: "warning-return-periods", usage: "JSON map of return-period thresholds, keyed by rivid, used for warning-point classification", defaultVal: "",
			flagsets: []*pflag.FlagSet{run, watch},
		},
	}
}

// StringSlice reads a []string option out of Cfg, using cast so that
// values supplied via a config file as either a native list or a
// comma-separated string both resolve the same way.
func StringSlice(name string) ([]string, error) {
	return cast.ToStringSliceE(Cfg.Get(name))
}

// DispatchBackendName validates the configured dispatch backend name.
func DispatchBackendName() (string, error) {
	v := Cfg.GetString("dispatch-backend")
	switch v {
	case "local", "k8s":
		return v, nil
	default:
		return "", fmt.Errorf("%w: dispatch-backend must be 'local' or 'k8s', got %q", rferrors.ErrConfigError, v)
	}
}
