// Command pingchat runs the ping variant of the relay: "pingchat start"
// serves, anything else connects, sends "ping" and prints what arrives.
package main

import (
	"os"

	"github.com/Tyrowin/wsrelay/internal/cli"
	"github.com/Tyrowin/wsrelay/internal/protocol"
)

func main() {
	os.Exit(cli.Execute(protocol.VariantPing))
}
