package config

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	spaceLuaBlockPattern = regexp.MustCompile("(?s)```space-lua\\s*\\n(.*?)\\n```")
	configSetPattern     = regexp.MustCompile(`config\.set\s*\(\s*["']([^"']+)["']\s*,\s*(.+?)\s*\)`)
)

// ParseConfigPage extracts literal config.set() values from the space-lua
// blocks of a CONFIG.md page. Values that are not literals are skipped.
func ParseConfigPage(content string) map[string]any {
	blocks := extractSpaceLuaBlocks(content)
	if len(blocks) == 0 {
		return nil
	}
	return parseConfigCalls(strings.Join(blocks, "\n"))
}

func extractSpaceLuaBlocks(content string) []string {
	var blocks []string
	for _, m := range spaceLuaBlockPattern.FindAllStringSubmatch(content, -1) {
		blocks = append(blocks, m[1])
	}
	return blocks
}

func parseConfigCalls(luaCode string) map[string]any {
	values := make(map[string]any)
	for _, m := range configSetPattern.FindAllStringSubmatch(luaCode, -1) {
		if v := parseValue(m[2]); v != nil {
			values[m[1]] = v
		}
	}
	return values
}

// parseValue reads a Lua literal: boolean, string or number.
func parseValue(s string) any {
	s = strings.TrimSpace(s)

	switch s {
	case "true":
		return true
	case "false":
		return false
	case "nil", "":
		return nil
	}

	if len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\'') {
		return s[1 : len(s)-1]
	}

	var intVal int
	if _, err := fmt.Sscanf(s, "%d", &intVal); err == nil && fmt.Sprintf("%d", intVal) == s {
		return intVal
	}

	var floatVal float64
	if _, err := fmt.Sscanf(s, "%f", &floatVal); err == nil {
		return floatVal
	}

	return nil
}
