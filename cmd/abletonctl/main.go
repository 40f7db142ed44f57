// Package main is the entrypoint for abletonctl, the bridge's debug client.
package main

func main() {
	Execute()
}
