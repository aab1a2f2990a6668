// Command marmotctl drives one identity through the group lifecycle
// (keygen, keypackage, create, invite, join, send, ingest) over an
// offline flat-file transport, for demoing and exercising internal/group
// without a live relay.
package main

import (
	"fmt"
	"os"

	"github.com/marmot-go/marmotgroup/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
