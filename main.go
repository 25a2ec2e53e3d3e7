package main

import "github.com/ValentinKolb/dBandit/cmd"

func main() {
	cmd.Execute()
}
