package artifact

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// OverwritePolicy decides whether an existing artifact is replaced.
type OverwritePolicy interface {
	ShouldOverwrite(path string) (bool, error)
}

// PolicyFunc adapts a function to OverwritePolicy.
type PolicyFunc func(path string) (bool, error)

// ShouldOverwrite calls f.
func (f PolicyFunc) ShouldOverwrite(path string) (bool, error) { return f(path) }

// SkipExisting keeps existing artifacts.
var SkipExisting = PolicyFunc(func(string) (bool, error) { return false, nil })

// OverwriteExisting always replaces existing artifacts.
var OverwriteExisting = PolicyFunc(func(string) (bool, error) { return true, nil })

// Prompt asks on out and reads a y/n answer from in. Anything but "y" keeps the file.
func Prompt(in io.Reader, out io.Writer) OverwritePolicy {
	reader := bufio.NewReader(in)
	return PolicyFunc(func(path string) (bool, error) {
		fmt.Fprintf(out, "File already exists: %s\nDo you want to re-download? (y/n): ", path)

		answer, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return false, fmt.Errorf("read answer: %w", err)
		}
		return strings.EqualFold(strings.TrimSpace(answer), "y"), nil
	})
}

// ParsePolicy maps a configuration value to a policy: "skip", "overwrite" or "ask".
func ParsePolicy(name string, in io.Reader, out io.Writer) (OverwritePolicy, error) {
	switch strings.ToLower(name) {
	case "skip":
		return SkipExisting, nil
	case "overwrite":
		return OverwriteExisting, nil
	case "ask", "":
		return Prompt(in, out), nil
	default:
		return nil, fmt.Errorf("unknown overwrite policy %q (want skip, overwrite or ask)", name)
	}
}
