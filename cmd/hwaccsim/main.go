// Package main provides the hwaccsim command-line tool. It simulates
// accelerator workloads, records their reports and serves recorded runs.
package main

import (
	"github.com/tebeka/atexit"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		atexit.Exit(1)
	}
	atexit.Exit(0)
}
