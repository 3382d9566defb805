package main

import "go-auth-api/cmd"

func main() {
	cmd.Execute()
}
