package filecache

import (
	"errors"
	"os"
)

var errClosed = errors.New("filecache: cache is closed")

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
