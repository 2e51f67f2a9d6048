// Command joinchat runs the join variant of the relay: "joinchat start"
// serves, anything else joins with an optional username and opens a prompt.
package main

import (
	"os"

	"github.com/Tyrowin/wsrelay/internal/cli"
	"github.com/Tyrowin/wsrelay/internal/protocol"
)

func main() {
	os.Exit(cli.Execute(protocol.VariantJoin))
}
