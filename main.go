package main

import "mcp-agent/agent_go/cmd"

func main() {
	cmd.Execute()
}
