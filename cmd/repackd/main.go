// Package main is the repackd entrypoint.
package main

import "github.com/JakeFAU/repack-aggregator/cmd"

func main() {
	cmd.Execute()
}
