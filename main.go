package main

import "chatmakere/internal/cli"

func main() {
	cli.Execute()
}
