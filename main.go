package main

import "github.com/mediconnect/appointment-management/cmd"

func main() {
	cmd.Execute()
}
