package main

import "github.com/ValentinKolb/kvenv/cmd"

func main() {
	cmd.Execute()
}
