package main

import (
	_ "github.com/joho/godotenv/autoload"

	"kbindex/cmd"
)

func main() {
	cmd.Execute()
}
