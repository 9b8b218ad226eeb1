package main

import "cruise-drop-alerts/internal/cli"

func main() {
	cli.Execute()
}
