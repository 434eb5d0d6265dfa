package main

import (
	"issuelens/cmd/handlers"
)

func main() {
	handlers.Execute()
}
