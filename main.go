package main

import (
	"os"

	"github.com/codacy-acme/gl-repo-reporter/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
