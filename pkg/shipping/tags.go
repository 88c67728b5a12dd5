package shipping

import (
	"strings"
)

// Order tags that drive customer-visible status on the platform.
const (
	TagReadyForPickup = "LISTO_PARA_RETIRO"
	TagDelivered      = "ENTREGADO"
	TagShipped        = "ENVIADO"
)

// MergeTags appends the tags in toAdd that are not already present,
// comparing case-insensitively. Existing tags keep their spelling and order.
func MergeTags(existing, toAdd []string) []string {
	merged := make([]string, 0, len(existing)+len(toAdd))
	seen := make(map[string]struct{}, len(existing)+len(toAdd))
	for _, group := range [][]string{existing, toAdd} {
		for _, tag := range group {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			key := strings.ToLower(tag)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, tag)
		}
	}
	return merged
}

// RemoveTags drops every tag that matches one of toRemove case-insensitively.
func RemoveTags(existing, toRemove []string) []string {
	drop := make(map[string]struct{}, len(toRemove))
	for _, tag := range toRemove {
		drop[strings.ToLower(strings.TrimSpace(tag))] = struct{}{}
	}
	remaining := make([]string, 0, len(existing))
	for _, tag := range existing {
		if _, ok := drop[strings.ToLower(strings.TrimSpace(tag))]; ok {
			continue
		}
		remaining = append(remaining, tag)
	}
	return remaining
}

// ParseTags splits the platform's comma-separated tag string.
func ParseTags(s string) []string {
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

// JoinTags renders tags in the platform's comma-separated form.
func JoinTags(tags []string) string {
	return strings.Join(tags, ", ")
}

// SameTags reports whether a and b hold the same tags, ignoring case and order.
func SameTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, tag := range a {
		counts[strings.ToLower(tag)]++
	}
	for _, tag := range b {
		key := strings.ToLower(tag)
		if counts[key] == 0 {
			return false
		}
		counts[key]--
	}
	return true
}
