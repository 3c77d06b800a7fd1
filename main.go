package main

import (
	_ "embed"
	"strings"

	"github.com/QuesmaOrg/codex-summarize-session/cmd"
)

//go:embed VERSION
var version string

// Set by the release build with -ldflags.
var (
	commit = ""
	date   = ""
)

func main() {
	cmd.SetVersionInfo(strings.TrimSpace(version), commit, date)
	cmd.Execute()
}
