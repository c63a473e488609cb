package transcript

import (
	"bufio"
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"studyforge/internal/content"
)

// Format of a transcript source.
type Format string

const (
	FormatSRT   Format = "srt"
	FormatVTT   Format = "vtt"
	FormatPlain Format = "plain"
)

// Parsed is a normalized transcript.
type Parsed struct {
	Format   Format
	FullText string
	Segments []content.Segment
}

const bom = "\ufeff"

var tagPattern = regexp.MustCompile(`</?[a-zA-Z][^>]*>|\{\\[^}]*\}`)

// Detect picks a format from the filename and, failing that, the content.
func Detect(filename string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".srt":
		return FormatSRT
	case ".vtt":
		return FormatVTT
	}
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(data, []byte(bom)))
	if bytes.HasPrefix(trimmed, []byte("WEBVTT")) {
		return FormatVTT
	}
	if bytes.Contains(trimmed, []byte("-->")) {
		return FormatSRT
	}
	return FormatPlain
}

// Parse normalizes data according to Detect.
func Parse(filename string, data []byte) (Parsed, error) {
	if !utf8.Valid(data) {
		return Parsed{}, fmt.Errorf("transcript %s is not valid UTF-8", filename)
	}
	text := strings.TrimPrefix(string(data), bom)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	format := Detect(filename, data)

	var segments []content.Segment
	var err error
	switch format {
	case FormatSRT, FormatVTT:
		segments, err = parseCues(text)
	default:
		segments = parsePlain(text)
	}
	if err != nil {
		return Parsed{}, err
	}
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		parts = append(parts, seg.Text)
	}
	separator := " "
	if format == FormatPlain {
		separator = "\n\n"
	}
	return Parsed{Format: format, FullText: strings.Join(parts, separator), Segments: segments}, nil
}

func parseCues(text string) ([]content.Segment, error) {
	var (
		segments []content.Segment
		current  *content.Segment
		lines    []string
	)
	flush := func() {
		if current == nil {
			return
		}
		if joined := cleanLine(strings.Join(lines, " ")); joined != "" {
			current.Text = joined
			current.Index = len(segments)
			segments = append(segments, *current)
		}
		current = nil
		lines = lines[:0]
	}

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			flush()
		case strings.Contains(line, "-->"):
			flush()
			start, end, err := parseTiming(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			current = &content.Segment{StartSeconds: start, EndSeconds: end}
		case current == nil:
			// Sequence numbers, the WEBVTT header and NOTE/STYLE blocks.
		default:
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan transcript: %w", err)
	}
	flush()
	return segments, nil
}

func parsePlain(text string) []content.Segment {
	var segments []content.Segment
	for _, block := range strings.Split(text, "\n\n") {
		paragraph := cleanLine(strings.Join(strings.Fields(block), " "))
		if paragraph == "" {
			continue
		}
		segments = append(segments, content.Segment{Index: len(segments), Text: paragraph})
	}
	return segments
}

func parseTiming(line string) (float64, float64, error) {
	parts := strings.SplitN(line, "-->", 2)
	startText := strings.TrimSpace(parts[0])
	endFields := strings.Fields(parts[1])
	if len(endFields) == 0 {
		return 0, 0, fmt.Errorf("missing end timestamp in %q", line)
	}
	start, err := parseTimestamp(startText)
	if err != nil {
		return 0, 0, err
	}
	end, err := parseTimestamp(endFields[0])
	if err != nil {
		return 0, 0, err
	}
	if end < start {
		return 0, 0, fmt.Errorf("cue ends before it starts: %q", line)
	}
	return start, end, nil
}

// parseTimestamp accepts HH:MM:SS,mmm, HH:MM:SS.mmm and the VTT MM:SS.mmm form.
func parseTimestamp(value string) (float64, error) {
	value = strings.ReplaceAll(strings.TrimSpace(value), ",", ".")
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	clock, fraction, _ := strings.Cut(value, ".")
	hms := strings.Split(clock, ":")
	if len(hms) == 2 {
		hms = append([]string{"0"}, hms...)
	}
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	var units [3]int
	for i, part := range hms {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", value)
		}
		units[i] = n
	}
	seconds := float64(units[0]*3600 + units[1]*60 + units[2])
	if fraction != "" {
		millis, err := strconv.Atoi(fraction)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp %q", value)
		}
		seconds += float64(millis) / pow10(len(fraction))
	}
	return seconds, nil
}

func pow10(n int) float64 {
	v := 1.0
	for range n {
		v *= 10
	}
	return v
}

func cleanLine(line string) string {
	line = tagPattern.ReplaceAllString(line, "")
	return strings.Join(strings.Fields(line), " ")
}
