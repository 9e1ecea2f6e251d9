package main

import "github.com/bryanchriswhite/addertuner/cmd/addertuner/commands"

func main() {
	commands.Execute()
}
