////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package emoji handles text that mixes plain characters with emoji made of
// several code points, such as flags and skin-tone or ZWJ sequences.
package emoji

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/forPelevin/gomoji"
)

// Ellipsis is appended to truncated text.
const Ellipsis = "..."

// Units splits s into the pieces that must never be separated: every emoji
// sequence is one unit and every other rune is its own unit.
func Units(s string) []string {
	found := gomoji.CollectAll(s)
	if len(found) == 0 {
		return runes(s)
	}

	// Longest first so a ZWJ sequence wins over its leading emoji
	chars := make([]string, 0, len(found))
	seen := make(map[string]struct{}, len(found))
	for _, e := range found {
		if _, ok := seen[e.Character]; ok || e.Character == "" {
			continue
		}
		seen[e.Character] = struct{}{}
		chars = append(chars, e.Character)
	}
	sort.Slice(chars, func(i, j int) bool { return len(chars[i]) > len(chars[j]) })

	var units []string
	for len(s) > 0 {
		matched := ""
		for _, c := range chars {
			if strings.HasPrefix(s, c) {
				matched = c
				break
			}
		}
		if matched == "" {
			_, size := utf8.DecodeRuneInString(s)
			matched = s[:size]
		}
		units = append(units, matched)
		s = s[len(matched):]
	}
	return units
}

// Truncate shortens s to at most max runes, Ellipsis included, without
// cutting through an emoji. Text that already fits is returned unchanged.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	} else if utf8.RuneCountInString(s) <= max {
		return s
	}
	budget := max - utf8.RuneCountInString(Ellipsis)
	if budget <= 0 {
		return Ellipsis[:max]
	}

	var b strings.Builder
	used := 0
	for _, u := range Units(s) {
		n := utf8.RuneCountInString(u)
		if used+n > budget {
			break
		}
		b.WriteString(u)
		used += n
	}
	return strings.TrimRightFunc(b.String(), isSpace) + Ellipsis
}

func runes(s string) []string {
	units := make([]string, 0, len(s))
	for _, r := range s {
		units = append(units, string(r))
	}
	return units
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
