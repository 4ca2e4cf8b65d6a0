package engine

import (
	"os"
	"time"
)

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func timeNowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
