package main

import "github.com/vietddude/medlingo/internal/cli"

func main() {
	cli.Execute()
}
