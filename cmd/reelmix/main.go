package main

import "github.com/nextconvert/reelmix/internal/cli"

func main() {
	cli.Main()
}
