package main

import "github.com/yigit/educhat/internal/cli"

func main() {
	cli.Execute()
}
