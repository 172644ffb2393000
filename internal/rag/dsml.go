package rag

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// DeepSeek occasionally writes a tool call as DSML markup in the message
// content instead of a structured tool call. The bar is either the full-width
// U+FF5C or ASCII.
var (
	dsmlInvokeRe = regexp.MustCompile(`<[｜|]\s*DSML\s*[｜|]\s*invoke\s+name="([^"]+)"\s*>`)
	dsmlParamRe  = regexp.MustCompile(`(?s)<[｜|]\s*DSML\s*[｜|]\s*parameter\s+name="([^"]+)"[^>]*>(.*?)</[｜|]\s*DSML\s*[｜|]\s*parameter\s*>`)
	integerRe    = regexp.MustCompile(`^-?\d+$`)
)

// parseDSML extracts the first invoked tool and its arguments as JSON.
func parseDSML(content string) (string, json.RawMessage, bool) {
	m := dsmlInvokeRe.FindStringSubmatch(content)
	if m == nil {
		return "", nil, false
	}

	args := map[string]any{}
	for _, p := range dsmlParamRe.FindAllStringSubmatch(content, -1) {
		value := strings.TrimSpace(p[2])
		if integerRe.MatchString(value) {
			if n, err := strconv.Atoi(value); err == nil {
				args[p[1]] = n
				continue
			}
		}
		args[p[1]] = value
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return "", nil, false
	}
	return m[1], raw, true
}
