//go:build ignore

package main

import (
	"fmt"
	"os"

	"github.com/craftlab/lodestone/pkg/story"
)

func main() {
	data, err := story.GenerateJSONSchema()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile("schemas/story-v1.json", data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "write: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("wrote schemas/story-v1.json")
}
