// trustctl is the operator CLI for the trust evaluation gateway.
package main

import (
	"os"

	"github.com/RaihaanIhsan/ZeroTrustHealthCare/cmd/trustctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
