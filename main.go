package main

import "github.com/Norgate-AV/gebc/cmd"

func main() {
	cmd.Execute()
}
