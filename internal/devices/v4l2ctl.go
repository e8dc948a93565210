package devices

import (
	"sort"
	"strings"
)

// ParseFormats reads "v4l2-ctl --list-formats-ext" or "--list-formats"
// output. Formats keep their listing order and are deduplicated by fourcc;
// sizes are deduplicated, sorted and capped.
func ParseFormats(out string) []Format {
	var (
		order []string
		sizes = map[string][]string{}
		cur   string
	)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "["):
			fourcc, ok := quoted(line)
			if !ok {
				continue
			}
			cur = fourcc
			if _, seen := sizes[cur]; !seen {
				sizes[cur] = nil
				order = append(order, cur)
			}
		case strings.HasPrefix(line, "Size:") && cur != "":
			size := strings.TrimSpace(strings.TrimPrefix(line, "Size:"))
			size = strings.TrimSpace(strings.TrimPrefix(size, "Discrete"))
			size = strings.TrimSpace(strings.TrimPrefix(size, "Stepwise"))
			if strings.Contains(size, "x") {
				sizes[cur] = append(sizes[cur], size)
			}
		}
	}

	formats := make([]Format, 0, len(order))
	for _, fourcc := range order {
		formats = append(formats, Format{FourCC: fourcc, Sizes: uniqueSizes(sizes[fourcc])})
	}
	return formats
}

func quoted(line string) (string, bool) {
	start := strings.IndexByte(line, '\'')
	if start < 0 {
		return "", false
	}
	end := strings.IndexByte(line[start+1:], '\'')
	if end <= 0 {
		return "", false
	}
	return line[start+1 : start+1+end], true
}

func uniqueSizes(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	if len(out) > maxListedSizes {
		out = out[:maxListedSizes]
	}
	return out
}
