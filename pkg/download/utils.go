package download

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

const nameLimit = 160

var (
	colonSpaced = regexp.MustCompile(`([\p{L}\d]): +([\p{L}\d])`)
	colonTight  = regexp.MustCompile(`([\p{L}\d]):([\p{L}\d])`)
	questionMid = regexp.MustCompile(`([\p{L}\d])\?+ +([\p{L}\d])`)
	slashMid    = regexp.MustCompile(`([\p{L}\d])/+([\p{L}\d])`)
	spaces      = regexp.MustCompile(` {2,}`)
)

// SanitizeTitle turns a video title into a file name stem that is valid on
// every platform and at most nameLimit bytes long.
func SanitizeTitle(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.ReplaceAll(name, "\"", "")

	name = colonSpaced.ReplaceAllString(name, "${1} - ${2}")
	name = colonTight.ReplaceAllString(name, "${1} ${2}")
	name = strings.ReplaceAll(name, ":", "")
	name = strings.ReplaceAll(name, "：", " ")

	name = questionMid.ReplaceAllString(name, "${1} - ${2}")
	name = strings.ReplaceAll(name, "?", "")
	name = strings.ReplaceAll(name, "？", "")

	name = slashMid.ReplaceAllString(name, "${1} ${2}")
	name = strings.ReplaceAll(name, "/", "")

	for _, c := range []string{"\\", "*", "<", ">", "|"} {
		name = strings.ReplaceAll(name, c, "")
	}

	name = spaces.ReplaceAllString(name, " ")
	name = strings.Trim(name, " .")

	if len(name) > nameLimit {
		total := 0
		var truncated []rune
		for _, r := range name {
			total += len(string(r))
			if total > nameLimit {
				break
			}
			truncated = append(truncated, r)
		}
		name = strings.TrimRight(string(truncated), " .")
	}
	return name
}

// AudioStem names the audio of one part of a video. Part numbers are only
// appended for multi-part videos.
func AudioStem(title, bvid string, page, pages int) string {
	stem := SanitizeTitle(title)
	if stem == "" {
		stem = bvid
	}
	if pages > 1 {
		stem = fmt.Sprintf("%s - P%02d", stem, page)
	}
	return stem
}
