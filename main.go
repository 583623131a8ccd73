package main

import (
	"github.com/helixml/kmspresent/cmd/kmspresent"
)

func main() {
	kmspresent.Execute()
}
