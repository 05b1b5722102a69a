package main

import "github.com/BrandonDHaskell/facegate/cmd/facegate/cmd"

func main() {
	cmd.Execute()
}
