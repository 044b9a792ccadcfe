// Package appearance holds the read-only lookup tables that decide how a
// planet is animated and drawn: its angular speed per tick and its display
// colour. Tables are built once at startup and never mutated afterwards.
package appearance

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"sort"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/colornames"
)

const (
	// DefaultSpeed applies to planets missing from the speed table.
	DefaultSpeed = 0.01
	// DefaultColor applies to planets missing from the colour table.
	DefaultColor = "white"
)

var (
	ErrInvalidSpeed = errors.New("invalid orbit speed")
	ErrUnknownColor = errors.New("unknown colour")
)

// SpeedTable maps planet names to angular increments per tick.
type SpeedTable struct {
	speeds map[string]float64
	def    float64
}

// NewSpeedTable copies entries into a new table. Every speed, including the
// default, must be positive and finite.
func NewSpeedTable(entries map[string]float64, def float64) (SpeedTable, error) {
	if err := validSpeed("default", def); err != nil {
		return SpeedTable{}, err
	}
	speeds := make(map[string]float64, len(entries))
	for name, s := range entries {
		if err := validSpeed(name, s); err != nil {
			return SpeedTable{}, err
		}
		speeds[name] = s
	}
	return SpeedTable{speeds: speeds, def: def}, nil
}

// Lookup returns the speed for name, or the default when absent.
func (t SpeedTable) Lookup(name string) float64 {
	if s, ok := t.speeds[name]; ok {
		return s
	}
	if t.def == 0 {
		return DefaultSpeed
	}
	return t.def
}

// Len reports the number of explicit entries.
func (t SpeedTable) Len() int { return len(t.speeds) }

func validSpeed(name string, s float64) error {
	if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return fmt.Errorf("%w: %s = %v", ErrInvalidSpeed, name, s)
	}
	return nil
}

// ColorTable maps planet names to display colours. Colours are CSS colour
// names or #rrggbb strings and are validated when the table is built.
type ColorTable struct {
	colors   map[string]colorful.Color
	names    map[string]string
	def      colorful.Color
	defName  string
	hasEntry bool
}

// NewColorTable copies entries into a new table.
func NewColorTable(entries map[string]string, def string) (ColorTable, error) {
	defColor, err := ParseColor(def)
	if err != nil {
		return ColorTable{}, err
	}
	t := ColorTable{
		colors:   make(map[string]colorful.Color, len(entries)),
		names:    make(map[string]string, len(entries)),
		def:      defColor,
		defName:  def,
		hasEntry: true,
	}
	for name, value := range entries {
		c, err := ParseColor(value)
		if err != nil {
			return ColorTable{}, fmt.Errorf("colour for %s: %w", name, err)
		}
		t.colors[name] = c
		t.names[name] = value
	}
	return t, nil
}

// Lookup returns the configured colour string for name, or the default.
func (t ColorTable) Lookup(name string) string {
	if value, ok := t.names[name]; ok {
		return value
	}
	if !t.hasEntry {
		return DefaultColor
	}
	return t.defName
}

// Resolve returns the parsed colour for name, or the default.
func (t ColorTable) Resolve(name string) colorful.Color {
	if c, ok := t.colors[name]; ok {
		return c
	}
	if !t.hasEntry {
		c, _ := ParseColor(DefaultColor)
		return c
	}
	return t.def
}

// Hex returns the #rrggbb form of the colour for name.
func (t ColorTable) Hex(name string) string {
	return t.Resolve(name).Hex()
}

// Len reports the number of explicit entries.
func (t ColorTable) Len() int { return len(t.names) }

// ParseColor accepts a CSS colour keyword or a #rgb / #rrggbb string.
func ParseColor(value string) (colorful.Color, error) {
	s := strings.ToLower(strings.TrimSpace(value))
	if strings.HasPrefix(s, "#") {
		c, err := colorful.Hex(s)
		if err != nil {
			return colorful.Color{}, fmt.Errorf("%w: %q: %v", ErrUnknownColor, value, err)
		}
		return c, nil
	}
	named, ok := colornames.Map[s]
	if !ok && s == "rebeccapurple" {
		named, ok = rebeccaPurple, true
	}
	if !ok {
		return colorful.Color{}, fmt.Errorf("%w: %q", ErrUnknownColor, value)
	}
	c, _ := colorful.MakeColor(named)
	return c, nil
}

// rebeccaPurple is the one CSS Color Level 4 keyword missing from the SVG 1.1 set.
var rebeccaPurple = color.RGBA{R: 0x66, G: 0x33, B: 0x99, A: 0xff}

// Tables bundles the two lookup tables.
type Tables struct {
	Speeds SpeedTable
	Colors ColorTable
}

// Defaults returns the built-in tables.
func Defaults() Tables {
	speeds, err := NewSpeedTable(defaultSpeeds, DefaultSpeed)
	if err != nil {
		panic(err)
	}
	colors, err := NewColorTable(defaultColors, DefaultColor)
	if err != nil {
		panic(err)
	}
	return Tables{Speeds: speeds, Colors: colors}
}

var defaultSpeeds = map[string]float64{
	"Mercury": 0.02,
	"Venus":   0.015,
	"Earth":   0.01,
	"Mars":    0.008,
	"Jupiter": 0.005,
	"Saturn":  0.003,
	"Uranus":  0.002,
	"Neptune": 0.001,
}

var defaultColors = map[string]string{
	"Mercury": "lightgray",
	"Venus":   "yellow",
	"Earth":   "blue",
	"Mars":    "red",
	"Jupiter": "orange",
	"Saturn":  "gold",
	"Uranus":  "lightblue",
	"Neptune": "darkblue",
}

// fileJSON is the on-disk override format.
type fileJSON struct {
	Speeds       map[string]float64 `json:"speeds"`
	Colors       map[string]string  `json:"colors"`
	DefaultSpeed *float64           `json:"default_speed"`
	DefaultColor *string            `json:"default_color"`
}

// LoadFile reads a JSON override file and merges it over the built-in
// tables. An empty path returns the defaults.
func LoadFile(path string) (Tables, error) {
	if path == "" {
		return Defaults(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("read appearance file %q: %w", path, err)
	}
	return Parse(data)
}

// Parse merges a JSON override document over the built-in tables.
func Parse(data []byte) (Tables, error) {
	var payload fileJSON
	if err := json.Unmarshal(data, &payload); err != nil {
		return Tables{}, fmt.Errorf("decode appearance: %w", err)
	}

	speeds := make(map[string]float64, len(defaultSpeeds)+len(payload.Speeds))
	for k, v := range defaultSpeeds {
		speeds[k] = v
	}
	for k, v := range payload.Speeds {
		speeds[k] = v
	}
	colors := make(map[string]string, len(defaultColors)+len(payload.Colors))
	for k, v := range defaultColors {
		colors[k] = v
	}
	for k, v := range payload.Colors {
		colors[k] = v
	}

	defSpeed := DefaultSpeed
	if payload.DefaultSpeed != nil {
		defSpeed = *payload.DefaultSpeed
	}
	defColor := DefaultColor
	if payload.DefaultColor != nil {
		defColor = *payload.DefaultColor
	}

	st, err := NewSpeedTable(speeds, defSpeed)
	if err != nil {
		return Tables{}, err
	}
	ct, err := NewColorTable(colors, defColor)
	if err != nil {
		return Tables{}, err
	}
	return Tables{Speeds: st, Colors: ct}, nil
}

// Names lists every planet with an explicit entry in either table.
func (t Tables) Names() []string {
	seen := make(map[string]struct{}, len(t.Speeds.speeds)+len(t.Colors.names))
	for n := range t.Speeds.speeds {
		seen[n] = struct{}{}
	}
	for n := range t.Colors.names {
		seen[n] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
