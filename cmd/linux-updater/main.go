package main

import "github.com/oshokin/linux-updater/cmd/linux-updater/cmd"

func main() {
	cmd.Execute()
}
