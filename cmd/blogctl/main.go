// Command blogctl manages the blogstore database: migrations, demo data,
// counter maintenance and reporting.
package main

import "github.com/marshallshelly/blogstore/cmd/blogctl/commands"

func main() {
	commands.Execute()
}
