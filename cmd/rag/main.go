package main

import "github.com/vanessasara/full-stack-Devops/internal/cli"

func main() {
	cli.Execute()
}
