package main

import "github.com/bryanchriswhite/CamWatch/cmd/camwatch/commands"

func main() {
	commands.Execute()
}
