package main

import "github.com/s3pipe/s3pipe/internal/cli"

func main() {
	cli.Execute()
}
