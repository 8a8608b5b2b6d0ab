// This program provides the wallet command line tooling.
package main

import (
	"github.com/meshchain/ledger/app/wallet/cli/cmd"
)

func main() {
	cmd.Execute()
}
