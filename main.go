package main

import "github.com/tonimelisma/msgraph-client/cmd"

func main() {
	cmd.Execute()
}
