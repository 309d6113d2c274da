package relations

import (
	"fmt"
	"os"
)

func openFeed(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open relation feed: %w", err)
	}
	return f, nil
}
