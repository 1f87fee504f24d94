package main

import (
	"github.com/anubhav-n-mishra/anubhav-meet/cmd/meet/cmd"
	"github.com/anubhav-n-mishra/anubhav-meet/internal/logging"
)

func main() {
	logging.Init()
	cmd.Execute()
}
