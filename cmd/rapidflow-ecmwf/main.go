// Command rapidflow-ecmwf runs the ensemble forecast-cycle controller
// against ECMWF upstream releases: 52-member GRIB-derived runoff grids
// classified by forecast-hour spacing into HighRes/LowResFull/LowRes
// windows per spec §4.1.
package main

import (
	"fmt"
	"os"

	"github.com/erdc/rapidflow/rapidflowutil"
)

func main() {
	rapidflowutil.Root.Use = "rapidflow-ecmwf"
	if err := rapidflowutil.Root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
