package main

import (
	"os"

	"github.com/SuperSchedules/superschedules/cmd/superschedules"
)

func main() {
	if err := superschedules.Execute(); err != nil {
		os.Exit(1)
	}
}
