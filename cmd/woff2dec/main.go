package main

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/tdewolff/argp"
	"github.com/tdewolff/woff2"
)

func main() {
	os.Exit(run())
}

func run() int {
	var input, output string

	cmd := argp.New("Reconstruct an SFNT/OpenType font from a WOFF or WOFF2 container - Taco de Wolff")
	cmd.AddArg(&input, "input", "Input WOFF or WOFF2 file.")
	cmd.AddArg(&output, "output", "Output SFNT file.")
	cmd.Parse()

	Error := log.New(os.Stderr, "ERROR: ", 0)

	b, err := os.ReadFile(input)
	if err != nil {
		Error.Println(err)
		return 1
	}

	var out []byte
	if strings.EqualFold(filepath.Ext(input), ".woff") {
		out, err = woff2.ParseWOFF(b)
	} else {
		out, err = woff2.ParseWOFF2(b)
	}
	if err != nil {
		Error.Println(err)
		return 1
	}

	if err := os.WriteFile(output, out, 0644); err != nil {
		Error.Println(err)
		return 1
	}
	return 0
}
