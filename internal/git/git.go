package git

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// ChangedFiles runs `git diff --name-only` against baseRef inside root and
// returns the absolute paths of files that differ, including uncommitted
// changes to tracked files.
func ChangedFiles(ctx context.Context, root, baseRef string) ([]string, error) {
	top, err := run(ctx, root, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, err
	}
	out, err := run(ctx, root, "diff", "--name-only", "--no-renames", baseRef)
	if err != nil {
		return nil, err
	}
	return parseNames(strings.TrimSpace(string(top)), out), nil
}

func run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git %s failed: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// parseNames turns repository-relative names into absolute paths.
func parseNames(top string, output []byte) []string {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	var files []string
	seen := map[string]bool{}
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		files = append(files, filepath.Join(top, filepath.FromSlash(name)))
	}
	return files
}
