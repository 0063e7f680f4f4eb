package main

import "github.com/taskdeck/apiserver/cmd"

func main() {
	cmd.Execute()
}
