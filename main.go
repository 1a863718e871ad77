package main

import "github.com/mpapenbr/iracelog-strategy-service-go/cmd"

func main() {
	cmd.Execute()
}
