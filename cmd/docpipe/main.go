package main

import (
	"log"

	"docpipe/cmd/docpipe/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		log.Fatal(err)
	}
}
