package text

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/enescakir/emoji"
	"github.com/lucasb-eyer/go-colorful"
)

var (
	EmojiMoving    = emoji.HourglassNotDone.String()
	EmojiMoved     = emoji.CheckBoxWithCheck.String()
	EmojiFailed    = emoji.CrossMark.String()
	EmojiNoResults = emoji.ThinkingFace.String()
)

const tagColorHashSalt uint32 = 6969420

// NOTE: changing these dimensions uncovers some awkward indexing issues in the color
// selection algo for tags. avoid if you can help it
var tagColors = colorGrid(4, 4)

// RelativeTime renders then relative to now, falling back to a date once
// it is more than a week away
func RelativeTime(then, now time.Time) string {
	ago := now.Sub(then)
	if ago >= 0 && ago < time.Minute {
		return "just now"
	}
	if ago < humanize.Week && ago > -humanize.Week {
		return humanize.CustomRelTime(then, now, "ago", "from now", magnitudes)
	}
	return then.Format("02 Jan 2006")
}

var magnitudes = []humanize.RelTimeMagnitude{
	{D: time.Second, Format: "now", DivBy: time.Second},
	{D: 2 * time.Second, Format: "1 second %s", DivBy: 1},
	{D: time.Minute, Format: "%d seconds %s", DivBy: time.Second},
	{D: 2 * time.Minute, Format: "1 minute %s", DivBy: 1},
	{D: time.Hour, Format: "%d minutes %s", DivBy: time.Minute},
	{D: 2 * time.Hour, Format: "1 hour %s", DivBy: 1},
	{D: humanize.Day, Format: "%d hours %s", DivBy: time.Hour},
	{D: 2 * humanize.Day, Format: "1 day %s", DivBy: 1},
	{D: humanize.Week, Format: "%d days %s", DivBy: humanize.Day},
	{D: math.MaxInt64, Format: "a long while %s", DivBy: 1},
}

// Tags reads a payload value holding a list of labels, e.g. skills
func Tags(v any) []string {
	switch v := v.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, t := range v {
			if s := strings.TrimSpace(fmt.Sprint(t)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		for _, t := range strings.Split(v, ",") {
			if s := strings.TrimSpace(t); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// ColoredTags renders tags sorted, each in a color derived from its text so
// a tag looks the same on every row
func ColoredTags(tags []string, joiner string) string {
	sorted := append([]string(nil), tags...)
	sort.Strings(sorted)

	colored := make([]string, len(sorted))
	for i, t := range sorted {
		colored[i] = lipgloss.NewStyle().Foreground(lipgloss.Color(TagColor(t))).Render(t)
	}
	return strings.Join(colored, joiner)
}

// TagColor is the hex color of a tag
func TagColor(tag string) string {
	rangeX, rangeY := len(tagColors), len(tagColors[0])
	h := fnv.New32a()
	h.Write([]byte(tag))
	idx := (h.Sum32() + tagColorHashSalt) % uint32(rangeX*rangeY)
	return tagColors[int(idx)/rangeY][int(idx)%rangeY]
}

func colorGrid(xSteps, ySteps int) [][]string {
	x0y0, _ := colorful.Hex("#F25D94")
	x1y0, _ := colorful.Hex("#EDFF82")
	x0y1, _ := colorful.Hex("#643AFF")
	x1y1, _ := colorful.Hex("#14F9D5")

	x0 := make([]colorful.Color, ySteps)
	for i := range x0 {
		x0[i] = x0y0.BlendLuv(x0y1, float64(i)/float64(ySteps))
	}
	x1 := make([]colorful.Color, ySteps)
	for i := range x1 {
		x1[i] = x1y0.BlendLuv(x1y1, float64(i)/float64(ySteps))
	}

	grid := make([][]string, ySteps)
	for x := 0; x < ySteps; x++ {
		grid[x] = make([]string, xSteps)
		for y := 0; y < xSteps; y++ {
			grid[x][y] = x0[x].BlendLuv(x1[x], float64(y)/float64(xSteps)).Hex()
		}
	}
	return grid
}
