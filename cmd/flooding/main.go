// Flooding runs processes of the flooding consensus protocol.
package main

import "github.com/relab/flooding/internal/cli"

func main() {
	cli.Execute()
}
