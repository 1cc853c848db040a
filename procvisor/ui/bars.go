// Copyright 2026 The Procvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ui

import (
	"github.com/gdamore/tcell/v2"
)

var (
	StyleNormal = tcell.StyleDefault.
			Foreground(tcell.ColorSilver).
			Background(tcell.ColorBlack)
	StyleGood = tcell.StyleDefault.
			Foreground(tcell.ColorGreen).
			Background(tcell.ColorBlack)
	StyleWarn = tcell.StyleDefault.
			Foreground(tcell.ColorYellow).
			Background(tcell.ColorBlack)
	StyleError = tcell.StyleDefault.
			Foreground(tcell.ColorMaroon).
			Background(tcell.ColorBlack)
	StyleSelected = StyleNormal.Reverse(true)

	styleBar = tcell.StyleDefault.
			Foreground(tcell.ColorBlack).
			Background(tcell.ColorSilver)
	styleKey = tcell.StyleDefault.
			Foreground(tcell.ColorBlue).
			Background(tcell.ColorSilver).Bold(true)
	styleTitle = tcell.StyleDefault.
			Foreground(tcell.ColorWhite).
			Background(tcell.ColorTeal).Bold(true)
)

// drawText puts str at (x, y), clipped at width w, and returns the
// column after the last cell written.
func drawText(s tcell.Screen, x, y, w int, style tcell.Style, str string) int {
	for _, r := range str {
		if x >= w {
			break
		}
		s.SetContent(x, y, r, nil, style)
		x++
	}
	return x
}

func fillRow(s tcell.Screen, y, w int, style tcell.Style) {
	for x := 0; x < w; x++ {
		s.SetContent(x, y, ' ', nil, style)
	}
}

func titleBar(s tcell.Screen, w int, left, right string) {
	fillRow(s, 0, w, styleTitle)
	drawText(s, 0, 0, w, styleTitle, " "+left)
	if x := w - len(right) - 1; x > len(left)+2 {
		drawText(s, x, 0, w, styleTitle, right)
	}
}

func statusBar(s tcell.Screen, w, y int, msg string) {
	fillRow(s, y, w, StyleNormal)
	drawText(s, 0, y, w, StyleWarn, msg)
}

// keyBar renders key hints such as "[Q] Quit", highlighting the text
// between the brackets.
func keyBar(s tcell.Screen, w, y int, words []string) {
	fillRow(s, y, w, styleBar)
	x := 0
	for i, word := range words {
		if i != 0 {
			x = drawText(s, x, y, w, styleBar, " ")
		}
		style := styleBar
		for _, r := range word {
			switch r {
			case '[':
				x = drawText(s, x, y, w, styleBar, "[")
				style = styleKey
				continue
			case ']':
				style = styleBar
			}
			x = drawText(s, x, y, w, style, string(r))
		}
	}
}
