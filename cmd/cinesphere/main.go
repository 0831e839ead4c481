// Command cinesphere builds movie search artifacts and queries them.
package main

import (
	"os"

	"github.com/Aman-CERP/cinesphere/cmd/cinesphere/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
