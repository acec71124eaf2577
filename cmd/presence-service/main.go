// Package main is the presence-service entrypoint (HTTP + WebSocket).
package main

import (
	"log"

	"github.com/amhar4u/Smart-LMS-sub001/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
