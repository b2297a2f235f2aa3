package main

import (
	"github.com/wartime-penguins/notary/cmd/notary/cmd"
)

func main() {
	cmd.Execute()
}
