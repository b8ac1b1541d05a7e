package main

import (
	"log"
	"os"

	"affab/src/commands"
)

var version = "dev"

func main() {
	app := commands.NewApp(version)

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
