// Package main is the entry point for the lakeformation-mcp service.
package main

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	Execute(version, commit, buildDate)
}
