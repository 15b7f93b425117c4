// Package routing drives the external hydrologic routing kernel: it
// renders the kernel's namelist parameter file, invokes the kernel binary
// as a child process, and classifies the outcome (spec §4.2).
package routing

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/erdc/rapidflow/cycle"
	"github.com/erdc/rapidflow/rferrors"
)

// Params holds the routing kernel's per-run namelist values. Field names
// follow the kernel's own ZS_*/BS_opt_* convention so operators reading
// rendered namelist files can cross-reference the kernel's documentation
// directly.
type Params struct {
	// ZS_TauR is the duration, in seconds, covered by one inflow time
	// step (the cadence of the forcing data).
	ZS_TauR int
	// ZS_dtR is the kernel's internal routing sub-step, in seconds.
	ZS_dtR int
	// ZS_TauM is the total simulated duration, in seconds.
	ZS_TauM int
	// ZS_dtM is the kernel's outer loop time interval, in seconds; equal
	// to ZS_TauR for every segment rapidflow runs.
	ZS_dtM int

	BSOptQinit bool
	QinitFile  string

	BSOptForcing  bool
	ForTotIDFile  string
	ForUseIDFile  string
	QforcingFile  string

	ConnectivityFile string
	WeightTableFile  string
	RiverIDFile      string
	InflowFile       string
	QoutFile         string

	NumberOfTimeSteps int
}

// IntervalFor returns (ZS_TauR, ZS_dtM) in seconds for one inflow time
// step at cadence hours, and the internal sub-step ZS_dtR, matching the
// kernel tuning used across every resolution class (spec §4.2): 15
// minutes internal routing step regardless of forcing cadence.
func IntervalFor(cadenceHours int) (tauR, dtR, dtM int) {
	return cadenceHours * 3600, 15 * 60, cadenceHours * 3600
}

// ForcingInputs looks for the three forcing-ingestion files the kernel
// requires to enable streamflow forcing (BS_opt_for) inside dir. Forcing
// is enabled only when all three are present (spec §4.2): a partial set
// is treated as forcing-disabled rather than an error, since older
// regions never carry these files at all.
func ForcingInputs(dir string) (forTotID, forUseID, qfor string, enabled bool) {
	forTotID = filepath.Join(dir, "for_tot_id.csv")
	forUseID = filepath.Join(dir, "for_use_id.csv")
	qfor = filepath.Join(dir, "qfor.csv")
	enabled = fileExists(forTotID) && fileExists(forUseID) && fileExists(qfor)
	return
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

const namelistTemplate = `&NL_namelist
BS_opt_Qinit    = {{.BSOptQinit | fortranBool}}
BS_opt_for      = {{.BSOptForcing | fortranBool}}
ZS_TauR         = {{.ZS_TauR}}
ZS_dtR          = {{.ZS_dtR}}
ZS_TauM         = {{.ZS_TauM}}
ZS_dtM          = {{.ZS_dtM}}
rrr_connect_file = "{{.ConnectivityFile}}"
rrr_weight_file  = "{{.WeightTableFile}}"
rrr_riv_id_file  = "{{.RiverIDFile}}"
rrr_m3_file      = "{{.InflowFile}}"
rrr_Qout_file    = "{{.QoutFile}}"
{{- if .BSOptQinit}}
rrr_Qinit_file   = "{{.QinitFile}}"
{{- end}}
{{- if .BSOptForcing}}
rrr_for_tot_id_file = "{{.ForTotIDFile}}"
rrr_for_use_id_file = "{{.ForUseIDFile}}"
rrr_Qfor_file       = "{{.QforcingFile}}"
{{- end}}
/
`

var namelistTmpl = template.Must(template.New("namelist").Funcs(template.FuncMap{
	"fortranBool": func(b bool) string {
		if b {
			return ".true."
		}
		return ".false."
	},
}).Parse(namelistTemplate))

// RenderNamelist writes p's namelist file to path.
func RenderNamelist(path string, p Params) error {
	var buf bytes.Buffer
	if err := namelistTmpl.Execute(&buf, p); err != nil {
		return fmt.Errorf("rapidflow: rendering namelist: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("rapidflow: writing namelist %s: %w", path, err)
	}
	return nil
}

// Invocation describes how to launch the routing kernel binary for one
// segment run.
type Invocation struct {
	ExecutablePath string
	NamelistPath   string
	WorkDir        string
	Timeout        time.Duration
}

// Run renders nothing itself (the caller must have already called
// RenderNamelist); it launches the kernel binary with WorkDir as its
// working directory -- an exec.Cmd.Dir assignment, not the original
// process-wide os.Chdir, so concurrent member workers never race on the
// process's current directory -- and waits for it to exit.
func Run(ctx context.Context, inv Invocation, log *logrus.Entry) error {
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, inv.ExecutablePath, inv.NamelistPath)
	cmd.Dir = inv.WorkDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	entry := log.WithFields(logrus.Fields{
		"executable": inv.ExecutablePath,
		"workdir":    inv.WorkDir,
		"elapsed_s":  elapsed.Seconds(),
	})

	if err != nil {
		entry.WithError(err).WithField("stderr", stderr.String()).Error("routing kernel failed")
		return fmt.Errorf("%w: %s: %v: stderr: %s", rferrors.ErrKernelNonzeroExit, inv.ExecutablePath, err, lastLines(stderr.String(), 20))
	}
	entry.Debug("routing kernel completed")
	return nil
}

func lastLines(s string, n int) string {
	lines := splitLines(s)
	if len(lines) <= n {
		return s
	}
	start := len(lines) - n
	out := ""
	for _, l := range lines[start:] {
		out += l + "\n"
	}
	return out
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, c := range s {
		if c == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

// ParamsFor builds the routing kernel Params for one member/segment run at
// the given resolution and cadence, wiring the shared connectivity/weight
// inputs and the per-segment inflow/output/Qinit paths (spec §4.2,
// §4.3 chaining of Qinit between segments).
func ParamsFor(r cycle.Resolution, cadenceHours, nSteps int, shared SharedInputs, qinitFile, inflowFile, qoutFile string, forcing ForcingSet) Params {
	tauR, dtR, dtM := IntervalFor(cadenceHours)
	p := Params{
		ZS_TauR:           tauR,
		ZS_dtR:            dtR,
		ZS_TauM:           tauR * nSteps,
		ZS_dtM:            dtM,
		BSOptQinit:        qinitFile != "",
		QinitFile:         qinitFile,
		ConnectivityFile:  shared.ConnectivityFile,
		WeightTableFile:   shared.WeightTableFile,
		RiverIDFile:       shared.RiverIDFile,
		InflowFile:        inflowFile,
		QoutFile:          qoutFile,
		NumberOfTimeSteps: nSteps,
	}
	if forcing.Enabled {
		p.BSOptForcing = true
		p.ForTotIDFile = forcing.ForTotIDFile
		p.ForUseIDFile = forcing.ForUseIDFile
		p.QforcingFile = forcing.QforcingFile
	}
	return p
}

// SharedInputs are the per-region routing inputs that do not change across
// members or segments within a cycle.
type SharedInputs struct {
	ConnectivityFile string
	WeightTableFile  string
	RiverIDFile      string
}

// ForcingSet carries the optional streamflow-forcing file trio.
type ForcingSet struct {
	Enabled      bool
	ForTotIDFile string
	ForUseIDFile string
	QforcingFile string
}
