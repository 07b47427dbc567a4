// Package runtime locates files stageboard keeps between runs: logs written
// while the TUI owns the terminal, and cached credentials.
package runtime

import (
	"fmt"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/mitchellh/go-homedir"
)

const (
	XDGName = "stageboard"
	LogFile = "stageboard.log"
)

// File returns the path of filename in the XDG runtime directory, creating
// the directory if needed
func File(filename string) (string, error) {
	return xdg.RuntimeFile(fmt.Sprintf("%s/%s", XDGName, filename))
}

// Resolve expands ~ in name. Bare file names resolve in the runtime
// directory; anything with a directory part is used as is.
func Resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty file name")
	}
	expanded, err := homedir.Expand(name)
	if err != nil {
		return "", fmt.Errorf("unable to expand %s: %w", name, err)
	}
	if filepath.Base(expanded) == expanded {
		return File(expanded)
	}
	return expanded, nil
}
