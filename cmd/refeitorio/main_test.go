package main

import (
	"testing"

	_ "github.com/refeitorio/refeitorio/internal/testing/guard"
)

func TestMainReturnsInTestMode(t *testing.T) {
	main()
}
