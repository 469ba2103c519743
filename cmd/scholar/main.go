// Command scholar runs the student-records medallion ETL.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "scholar: %v\n", err)
		os.Exit(1)
	}
}
