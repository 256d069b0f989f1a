package main

import "github.com/fakeyudi/tutor/cmd"

func main() {
	cmd.Execute()
}
