package main

import (
	"github.com/joho/godotenv"

	"automlsa/internal/app"
	"automlsa/internal/appshell"
)

func main() {
	// Optional .env next to the invocation: BLASTPATH, MAFFT, IQTREE, EMAIL.
	_ = godotenv.Load()
	appshell.Main(app.RunContext)
}
