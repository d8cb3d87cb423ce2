package main

import "wallet-pipeline/cmd/wallet-cli/cmd"

func main() {
	cmd.Execute()
}
