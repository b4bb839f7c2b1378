package main

import "github.com/clitutor/controller/cmd"

func main() {
	cmd.Execute()
}
