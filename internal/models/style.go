package models

import (
	"fmt"
	"strings"
)

// Font size bounds for captions.
const (
	MinFontSize     = 10
	MaxFontSize     = 100
	DefaultFontSize = 48
)

// Color is a named caption color from the supported palette.
type Color string

const (
	ColorWhite  Color = "white"
	ColorYellow Color = "yellow"
	ColorCyan   Color = "cyan"
	ColorGreen  Color = "green"
)

// Palette lists the supported caption colors in display order.
func Palette() []Color {
	return []Color{ColorWhite, ColorYellow, ColorCyan, ColorGreen}
}

// ParseColor matches s case-insensitively against the palette.
func ParseColor(s string) (Color, error) {
	c := Color(strings.ToLower(strings.TrimSpace(s)))
	for _, p := range Palette() {
		if c == p {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown caption color %q", s)
}

// Hex returns the RGB hex code of the color.
func (c Color) Hex() string {
	switch c {
	case ColorYellow:
		return "#FFEB04"
	case ColorCyan:
		return "#00FFFF"
	case ColorGreen:
		return "#00FF00"
	default:
		return "#FFFFFF"
	}
}

// TextPosition is where the caption is anchored on the HUD.
type TextPosition int

const (
	TextPositionTopLeft TextPosition = iota
	TextPositionTopRight
	TextPositionBottomLeft
	TextPositionBottomRight
	TextPositionCenter
	TextPositionCenterLeft
	TextPositionCenterRight
)

var textPositionNames = map[TextPosition]string{
	TextPositionTopLeft:     "TopLeft",
	TextPositionTopRight:    "TopRight",
	TextPositionBottomLeft:  "BottomLeft",
	TextPositionBottomRight: "BottomRight",
	TextPositionCenter:      "Center",
	TextPositionCenterLeft:  "CenterLeft",
	TextPositionCenterRight: "CenterRight",
}

func (p TextPosition) String() string {
	if name, ok := textPositionNames[p]; ok {
		return name
	}
	return fmt.Sprintf("TextPosition(%d)", int(p))
}

// ParseTextPosition accepts the names returned by String, case-insensitively.
func ParseTextPosition(s string) (TextPosition, error) {
	for p, name := range textPositionNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return p, nil
		}
	}
	return TextPositionCenter, fmt.Errorf("unknown text position %q", s)
}

// Anchor returns the normalized HUD anchor/pivot for the position.
// Unknown positions anchor at the center.
func (p TextPosition) Anchor() (x, y float64) {
	switch p {
	case TextPositionTopLeft:
		return 0, 1
	case TextPositionTopRight:
		return 1, 1
	case TextPositionBottomLeft:
		return 0, 0
	case TextPositionBottomRight:
		return 1, 0
	case TextPositionCenterLeft:
		return 0, 0.5
	case TextPositionCenterRight:
		return 1, 0.5
	default:
		return 0.5, 0.5
	}
}

// CaptionStyle is the presentation state read from settings at render time.
type CaptionStyle struct {
	FontSize     int
	Color        Color
	TextPosition TextPosition
	HUDOffset    Vec3
}
