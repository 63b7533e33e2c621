package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/quii/guardedcounter/internal/cli"
)

const (
	cmdName = "counter"

	shortDesc = "Increment a shared counter from many workers."
	longDesc  = `counter spawns workers that each take the lock on a shared counter,
increment it once, and release it. The coordinator joins every worker before
reading the final value, so the result is exactly the initial value plus the
number of workers that completed.

A run where any worker failed exits non-zero: its final value is not
trustworthy.
`
)

func main() {
	cmd := cli.NewRootCmd(cmdName, shortDesc, longDesc)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, strings.TrimLeft(err.Error(), "\n"))
		os.Exit(1)
	}
}
