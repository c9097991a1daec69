package assets

import (
	"embed"
	"fmt"
	"path"
	"strings"
)

//go:embed files/*
var FS embed.FS

func Load(name string) ([]byte, error) {
	clean := strings.TrimPrefix(path.Clean("/"+name), "/")
	if clean == "" || clean == "." || strings.HasPrefix(clean, "..") {
		return nil, fmt.Errorf("invalid asset name")
	}
	b, err := FS.ReadFile("files/" + clean)
	if err != nil {
		return nil, fmt.Errorf("read asset: %w", err)
	}
	return b, nil
}
