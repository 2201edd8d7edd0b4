package main

import "github.com/aweris/lazyblob/cmd/lazyblob/cmd"

func main() {
	cmd.Execute()
}
