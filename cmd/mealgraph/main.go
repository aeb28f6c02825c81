// Command mealgraph is the composition root for the recipe knowledge graph
// tooling.
package main

import "os"

func main() {
	os.Exit(Execute())
}
