// ismp-node processes cross-chain messages against a local host.
package main

import (
	"github.com/oasisprotocol/ismp/ismp-node/cmd"
)

func main() {
	cmd.Execute()
}
