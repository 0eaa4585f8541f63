package main

import "github.com/blackscythe123/track-my-crypto/internal/cli"

func main() {
	cli.Execute()
}
