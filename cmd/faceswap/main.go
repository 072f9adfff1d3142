package main

import "github.com/jo-hoe/faceswap/internal/cli"

func main() {
	cli.Execute()
}
