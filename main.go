package main

import "github.com/vibast-solutions/ms-go-payment-sessions/cmd"

func main() {
	cmd.Execute()
}
