package main

import (
	"log"

	tool "github.com/nextest/portal-auth/internal/tools/migrate"
)

func main() {
	if err := tool.NewRootCommand().Execute(); err != nil {
		log.Fatal(err)
	}
}
