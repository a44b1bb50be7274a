package main

import (
	"os"
)

var userConfigDir = os.UserConfigDir

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
