package utils

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const nanoIdAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func GenerateNanoIDWithPrefix(prefix string, length int) string {
	id, err := gonanoid.Generate(nanoIdAlphabet, length)
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf("%s_%s", prefix, id)
}
