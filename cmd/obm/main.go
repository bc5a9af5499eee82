// Command obm runs the Order Book Microservice: the Command Consumer
// loop, the event publisher's snapshot pump, and (optionally) the direct
// client TCP gateway, wired together from environment configuration.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "obm",
		Short: "Order Book Microservice",
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newRecoverOnlyCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
