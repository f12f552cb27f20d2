package main

import (
	"log"

	"github.com/Azuko9/forum-app/cmd/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
