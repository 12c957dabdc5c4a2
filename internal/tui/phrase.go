package tui

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

type styledRune struct {
	s       string
	width   int
	isSpace bool
}

// buildStyledRunes colors the phrase against what was typed so far. Typed
// runes past the end of the phrase are shown as mistakes.
func buildStyledRunes(phrase, typed []rune, recording bool) []styledRune {
	out := make([]styledRune, 0, max(len(phrase), len(typed)))
	for i, target := range phrase {
		displayed := target
		style := pendingStyle
		if i < len(typed) {
			switch {
			case typed[i] == target:
				style = correctStyle
			case target == ' ':
				displayed = '·'
				style = incorrectStyle
			default:
				style = incorrectStyle
			}
		} else if recording && i == len(typed) {
			style = cursorStyle
		}
		out = append(out, newStyledRune(style.Render(string(displayed)), displayed, target == ' '))
	}
	for _, r := range typed[min(len(typed), len(phrase)):] {
		out = append(out, newStyledRune(incorrectStyle.Render(string(r)), r, false))
	}
	return out
}

func newStyledRune(rendered string, r rune, isSpace bool) styledRune {
	return styledRune{s: rendered, width: runewidth.RuneWidth(r), isSpace: isSpace}
}

func renderStyledRunes(runes []styledRune) string {
	var b strings.Builder
	for _, item := range runes {
		b.WriteString(item.s)
	}
	return b.String()
}

// wrapStyledRunes breaks lines at the last space that fits into width, or
// mid-word when a word is longer than the line.
func wrapStyledRunes(runes []styledRune, width int) string {
	if width <= 0 {
		return renderStyledRunes(runes)
	}
	var out strings.Builder
	line := make([]styledRune, 0, len(runes))
	lineWidth := 0
	lastSpace := -1

	for i := 0; i < len(runes); {
		item := runes[i]
		if lineWidth+item.width > width && len(line) > 0 {
			if lastSpace >= 0 {
				out.WriteString(renderStyledRunes(line[:lastSpace]))
				line = append([]styledRune{}, line[lastSpace+1:]...)
			} else {
				out.WriteString(renderStyledRunes(line))
				line = line[:0]
			}
			out.WriteRune('\n')
			lineWidth, lastSpace = 0, -1
			for j, r := range line {
				lineWidth += r.width
				if r.isSpace {
					lastSpace = j
				}
			}
			continue
		}
		line = append(line, item)
		lineWidth += item.width
		if item.isSpace {
			lastSpace = len(line) - 1
		}
		i++
	}
	out.WriteString(renderStyledRunes(line))
	return out.String()
}
