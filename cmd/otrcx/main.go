package main

import "github.com/OpenTraceLab/OpenTraceRCX/cmd/otrcx/cmd"

func main() {
	cmd.Execute()
}
