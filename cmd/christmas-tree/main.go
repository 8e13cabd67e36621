package main

import "github.com/ernestchu/christmas-tree/internal/cmd"

func main() {
	cmd.Execute()
}
