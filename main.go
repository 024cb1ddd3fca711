package main

import "github.com/fintrack/apiserver/cmd"

func main() {
	cmd.Execute()
}
