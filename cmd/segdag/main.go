// Command segdag builds and queries segmented commit-graph stores.
package main

import "github.com/segdag/segdag/cmd/segdag/cmd"

func main() {
	cmd.Execute()
}
