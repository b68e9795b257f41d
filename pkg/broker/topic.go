package broker

import (
	"fmt"
	"strings"
)

// ValidateFilter checks filter against MQTT 3.1.1 topic filter rules:
// '#' only as the whole last level, '+' only as a whole level.
func ValidateFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("empty topic filter")
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "#":
			if i != len(levels)-1 {
				return fmt.Errorf("topic filter %q: '#' must be the last level", filter)
			}
		case strings.Contains(level, "#"):
			return fmt.Errorf("topic filter %q: '#' must occupy a whole level", filter)
		case level != "+" && strings.Contains(level, "+"):
			return fmt.Errorf("topic filter %q: '+' must occupy a whole level", filter)
		}
	}
	return nil
}

// Match reports whether topic matches the MQTT topic filter. Topics starting
// with '$' are not matched by a leading wildcard.
func Match(filter, topic string) bool {
	if strings.HasPrefix(topic, "$") && (strings.HasPrefix(filter, "+") || strings.HasPrefix(filter, "#")) {
		return false
	}

	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")

	for i, f := range fl {
		if f == "#" {
			// "a/#" also matches "a".
			return true
		}
		if i >= len(tl) {
			return false
		}
		if f != "+" && f != tl[i] {
			return false
		}
	}
	return len(fl) == len(tl)
}
