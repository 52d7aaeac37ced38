package main

import "github.com/JakeFAU/literature-crawler/cmd"

func main() {
	cmd.Execute()
}
