package main

import "github.com/danilofalcao/ai-relay/internal/cmd"

func main() {
	cmd.Run()
}
