package git

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// ChangedFile is one file touched in a diff. Paths are relative to the
// directory the diff ran in.
type ChangedFile struct {
	Path         string
	ChangedLines []int
	Deleted      bool
}

var hunkHeader = regexp.MustCompile(`^@@ -\d+(?:,\d+)? \+(\d+)(?:,(\d+))? @@`)

// ChangedFiles diffs the working tree of dir against baseRef, limited to
// files matching the pathspecs (all files when none are given).
func ChangedFiles(ctx context.Context, dir, baseRef string, pathspecs ...string) ([]ChangedFile, error) {
	args := []string{"-C", dir, "diff", "-U0", "--relative", baseRef, "--"}
	args = append(args, pathspecs...)
	cmd := exec.CommandContext(ctx, "git", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git diff failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return ParseDiff(output), nil
}

// ParseDiff reads unified diff output. Changed lines are line numbers in the
// new version of each file; a pure deletion hunk records the line it
// follows, so the record around it is still reported.
func ParseDiff(output []byte) []ChangedFile {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var changes []ChangedFile
	var current *ChangedFile
	flush := func() {
		if current != nil {
			changes = append(changes, *current)
			current = nil
		}
	}

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "diff --git "):
			flush()
			parts := strings.Fields(line)
			if len(parts) >= 4 {
				current = &ChangedFile{Path: strings.TrimPrefix(parts[3], "b/"), ChangedLines: []int{}}
			}

		case current == nil:

		case strings.HasPrefix(line, "+++ "):
			if p := strings.TrimPrefix(line, "+++ "); p != "/dev/null" {
				current.Path = strings.TrimPrefix(p, "b/")
			}

		case strings.HasPrefix(line, "deleted file mode"):
			current.Deleted = true

		case strings.HasPrefix(line, "@@"):
			m := hunkHeader.FindStringSubmatch(line)
			if len(m) < 2 {
				continue
			}
			start, _ := strconv.Atoi(m[1])
			count := 1
			if m[2] != "" {
				count, _ = strconv.Atoi(m[2])
			}
			if count == 0 {
				if start > 0 {
					current.ChangedLines = append(current.ChangedLines, start)
				}
				continue
			}
			for i := 0; i < count; i++ {
				current.ChangedLines = append(current.ChangedLines, start+i)
			}
		}
	}
	flush()
	return changes
}
