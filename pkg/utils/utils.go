package utils

import (
	"bufio"
	"fmt"
	"html"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

var (
	bvidPattern  = regexp.MustCompile(`BV[a-zA-Z0-9]{10}`)
	htmlTag      = regexp.MustCompile(`<[^>]*>`)
	illegalChars = regexp.MustCompile(`[\\/:*?"<>|]`)
	multiSpace   = regexp.MustCompile(`\s+`)
)

// RemoveFileIgnoreNotExists removes a file, ignoring the error if it doesn't exist.
func RemoveFileIgnoreNotExists(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ExtractBVID returns the first BV id found in s, or "" if there is none.
func ExtractBVID(s string) string {
	return bvidPattern.FindString(s)
}

// ReadBVList reads one URL or BV id per line. Lines starting with # are skipped
// and trailing "# comment" parts are cut off. Lines without a BV id are logged and
// ignored, duplicates are kept in order of first appearance only.
func ReadBVList(r io.Reader) ([]string, error) {
	var out []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}

		bvid := ExtractBVID(line)
		if bvid == "" {
			slog.Debug("No BV id in line", "line", line)
			continue
		}
		if seen[bvid] {
			continue
		}
		seen[bvid] = true
		out = append(out, bvid)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read BV list: %w", err)
	}
	return out, nil
}

// ReadBVListFile is ReadBVList over a file path.
func ReadBVListFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadBVList(f)
}

// StripHTML removes tags like <em class="keyword"> that search results carry in titles.
func StripHTML(s string) string {
	return html.UnescapeString(htmlTag.ReplaceAllString(s, ""))
}

// CleanFileName makes a title usable as a file or folder name.
func CleanFileName(rawName string) string {
	name := strings.TrimSpace(rawName)
	name = illegalChars.ReplaceAllString(name, "")
	name = multiSpace.ReplaceAllString(name, " ")
	name = strings.Trim(name, ". ")
	return name
}

// FormatCount shortens large counters the way the site shows them (1.2万, 3.4亿).
func FormatCount(n int64) string {
	switch {
	case n >= 100_000_000:
		return fmt.Sprintf("%.1f亿", float64(n)/100_000_000)
	case n >= 10_000:
		return fmt.Sprintf("%.1f万", float64(n)/10_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}
