package main

import (
	"github.com/coullessi/arcdefender/cmd"
)

func main() {
	cmd.Execute()
}
