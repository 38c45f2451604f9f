package main

import "github.com/fakeyudi/tabsession/cmd"

func main() {
	cmd.Execute()
}
