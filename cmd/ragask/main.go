// cmd/ragask/main.go
package main

import (
	cmd "github.com/mwiater/ragask/internal/cli"
)

// Set by -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	setVersionInfo = cmd.SetVersionInfo
	executeCmd     = cmd.Execute
)

// main starts the ragask CLI by delegating to the cobra root command defined in the
// ragask package.
func main() {
	setVersionInfo(version, commit, date)
	executeCmd()
}
