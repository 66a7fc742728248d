package main

import "github.com/jkoufopoulos/shopq-prototype-sub003/internal/cmd"

func main() {
	cmd.Execute()
}
