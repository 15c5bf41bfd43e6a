package main

import "github.com/ite-app/trustd/cmd"

func main() {
	cmd.Execute()
}
