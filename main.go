package main

import (
	"log"

	"github.com/Zhannyhong/cdc-bot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
