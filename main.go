package main

import "github.com/eventos/apiserver/cmd"

func main() {
	cmd.Execute()
}
