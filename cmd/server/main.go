package main

import "github.com/tinychat/server/cmd/server/cmd"

func main() {
	cmd.Execute()
}
