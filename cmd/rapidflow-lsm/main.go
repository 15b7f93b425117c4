// Command rapidflow-lsm runs the shared forecast-cycle controller under
// its own command name. It has no LSM-specific handling: like
// rapidflow-ecmwf, it dispatches every member file found in a release.
package main

import (
	"fmt"
	"os"

	"github.com/erdc/rapidflow/rapidflowutil"
)

func main() {
	rapidflowutil.Root.Use = "rapidflow-lsm"
	if err := rapidflowutil.Root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
