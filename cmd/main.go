package main

import "NetProbe/pkg/cli"

func main() {
	cli.Execute()
}
