/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: render.go
Description: Record formatters for terminal and machine output. Styled and Plain lay records
out in fixed-width columns (timestamp, pid-tid, tag, package, level, message); JSON writes
one object per record.
*/

package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/kleascm/akaylee-logcat/pkg/logcat"
)

// Output formats accepted by New
const (
	FormatStyled = "styled"
	FormatPlain  = "plain"
	FormatJSON   = "json"
)

// Ellipsis marks a truncated column
const Ellipsis = "…"

// Formats lists the supported output formats
func Formats() []string {
	return []string{FormatStyled, FormatPlain, FormatJSON}
}

// Columns holds the display width of each fixed column. The message column
// takes the rest of the line.
type Columns struct {
	Timestamp int
	PIDTID    int
	Tag       int
	Package   int
}

// DefaultColumns are the widths used by the stream command
var DefaultColumns = Columns{
	Timestamp: 18,
	PIDTID:    11,
	Tag:       25,
	Package:   35,
}

// New returns the formatter for format. Styled output is rendered for out so
// colour is dropped automatically when out is not a terminal.
func New(format string, out io.Writer) (logcat.Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatStyled, "":
		return NewStyled(out, DefaultColumns), nil
	case FormatPlain:
		return NewPlain(DefaultColumns), nil
	case FormatJSON:
		return JSON{}, nil
	default:
		return nil, fmt.Errorf("unknown render format %q (want one of %s)", format, strings.Join(Formats(), ", "))
	}
}

// fit truncates s to width cells, marking the cut with an ellipsis, and pads
// it with spaces to exactly width cells
func fit(s string, width int) string {
	if width <= 0 {
		return s
	}
	if ansi.StringWidth(s) > width {
		s = ansi.Truncate(s, width, Ellipsis)
	}
	if pad := width - ansi.StringWidth(s); pad > 0 {
		s += strings.Repeat(" ", pad)
	}
	return s
}

func pidTID(r logcat.Record) string {
	return fmt.Sprintf("%5s-%5s", r.PID, r.TID)
}

// Plain renders aligned columns without colour
type Plain struct {
	columns Columns
}

// NewPlain creates a plain formatter
func NewPlain(columns Columns) *Plain {
	return &Plain{columns: columns}
}

func (p *Plain) Format(r logcat.Record) string {
	return strings.Join([]string{
		fit(r.Timestamp, p.columns.Timestamp),
		fit(pidTID(r), p.columns.PIDTID),
		fit(r.Tag, p.columns.Tag),
		fit(r.Package, p.columns.Package),
		string(r.Level),
		r.Message,
	}, " ")
}

// Styled renders the same columns as Plain with lipgloss colours.
// Columns are fitted before styling so escape codes never affect widths.
type Styled struct {
	columns   Columns
	timestamp lipgloss.Style
	pidTID    lipgloss.Style
	tag       lipgloss.Style
	pkg       lipgloss.Style
	message   lipgloss.Style
	levels    map[logcat.Level]lipgloss.Style
}

// NewStyled creates a styled formatter whose colour profile follows out
func NewStyled(out io.Writer, columns Columns) *Styled {
	r := lipgloss.NewRenderer(out)
	level := func(fg, bg string) lipgloss.Style {
		return r.NewStyle().Foreground(lipgloss.Color(fg)).Background(lipgloss.Color(bg)).Bold(true)
	}

	return &Styled{
		columns:   columns,
		timestamp: r.NewStyle().Foreground(lipgloss.Color("#B7C5DB")),
		pidTID:    r.NewStyle().Foreground(lipgloss.Color("#B7C5DB")),
		tag:       r.NewStyle().Foreground(lipgloss.Color("#00B7F7")),
		pkg:       r.NewStyle().Foreground(lipgloss.Color("#00B7F7")),
		message:   r.NewStyle().Foreground(lipgloss.Color("#E6E6E6")),
		levels: map[logcat.Level]lipgloss.Style{
			logcat.LevelVerbose: level("#9E9E9E", "#303030"),
			logcat.LevelDebug:   level("#5FAFFF", "#1C2B3A"),
			logcat.LevelInfo:    level("#5FD75F", "#1C3A24"),
			logcat.LevelWarn:    level("#FFAF00", "#3A321C"),
			logcat.LevelError:   level("#FF5F5F", "#3A1C1C"),
			logcat.LevelFatal:   level("#FFFFFF", "#D70000"),
		},
	}
}

func (s *Styled) Format(r logcat.Record) string {
	levelStyle, ok := s.levels[r.Level]
	if !ok {
		levelStyle = s.message
	}

	message := s.message
	if r.Level == logcat.LevelError || r.Level == logcat.LevelFatal {
		message = levelStyle.UnsetBackground().UnsetBold()
	}

	return strings.Join([]string{
		s.timestamp.Render(fit(r.Timestamp, s.columns.Timestamp)),
		s.pidTID.Render(fit(pidTID(r), s.columns.PIDTID)),
		s.tag.Render(fit(r.Tag, s.columns.Tag)),
		s.pkg.Render(fit(r.Package, s.columns.Package)),
		levelStyle.Render(string(r.Level)),
		message.Render(r.Message),
	}, " ")
}

// JSON renders each record as a single-line JSON object
type JSON struct{}

func (JSON) Format(r logcat.Record) string {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(data)
}
