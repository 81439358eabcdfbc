// Command starswap runs the course index swap automation service.
package main

import (
	"fmt"
	"os"

	"github.com/joshlzx/starswap/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
