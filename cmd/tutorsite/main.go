package main

import (
	"fmt"
	"os"

	tutorsite "github.com/teachwithpriscilla/tutorsite"
)

func main() {
	cfg, err := tutorsite.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	app := tutorsite.New(cfg)
	defer app.Close()

	if err := app.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "tutorsite:", err)
		os.Exit(1)
	}
}
