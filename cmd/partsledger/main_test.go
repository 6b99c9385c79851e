package main

import (
	"testing"

	_ "github.com/odyssey-erp/partsledger/testing"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	main()
}
