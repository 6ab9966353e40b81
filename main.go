package main

import "github.com/terraconstructs/gridauth/cmd"

func main() {
	cmd.Execute()
}
