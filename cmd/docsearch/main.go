package main

import (
	_ "github.com/joho/godotenv/autoload"

	"docsearch/internal/cli"
)

// @title docsearch API
// @version 1.0
// @description PDF ingestion and semantic search.
// @BasePath /
func main() {
	cli.Execute()
}
