package main

import "github.com/oshokin/panic-button/cmd/panic-watchdog/cmd"

func main() {
	cmd.Execute()
}
