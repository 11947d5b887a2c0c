package main

import "github.com/khanhnv2901/seca-gap/cmd"

var execCmd = cmd.Execute

func main() {
	execCmd()
}
