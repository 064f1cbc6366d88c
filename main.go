package main

import "github.com/lightningmodel/lnchat/cmd"

func main() {
	cmd.Execute()
}
