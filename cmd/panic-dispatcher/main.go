package main

import "github.com/oshokin/panic-button/cmd/panic-dispatcher/cmd"

func main() {
	cmd.Execute()
}
