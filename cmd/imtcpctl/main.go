// imtcpctl is the CLI client for the imtcpd admin HTTP API.
package main

import "github.com/imtcpd/imtcpd/cmd/imtcpctl/commands"

func main() {
	commands.Execute()
}
