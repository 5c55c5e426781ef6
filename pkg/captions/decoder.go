package captions

import (
	"bufio"
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"

	sterrors "github.com/otherjamesbrown/studynotes-cli/pkg/errors"
	"github.com/otherjamesbrown/studynotes-cli/pkg/transcript"
)

var (
	// Inline markup inside cue text: <c>, </c>, <i>, <00:00:01.000>, <v Speaker>.
	vttTagRegex = regexp.MustCompile(`<[^>]*>`)
)

const (
	cueArrow = "-->"
	utf8BOM  = "\ufeff"
)

// Decode parses a raw caption payload. json3 is tried first when the trimmed
// payload starts with '{'; the cue-block path runs only if that yields nothing.
func Decode(raw string) Result {
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), utf8BOM))
	if trimmed == "" {
		return Result{Format: FormatUnknown, Err: fmt.Errorf("%w: empty payload", sterrors.ErrDecodeFailure)}
	}

	var jsonResult *Result
	if strings.HasPrefix(trimmed, "{") {
		res := decodeJSON3(trimmed)
		if res.OK() && len(res.Entries) > 0 {
			return res
		}
		jsonResult = &res
	}

	// A '{' payload only counts as cue blocks when cues were actually read;
	// an arrow inside broken JSON text is not a cue header.
	vtt, headers := decodeWebVTT(trimmed)
	if headers > 0 && (jsonResult == nil || len(vtt.Entries) > 0) {
		return vtt
	}

	if jsonResult != nil {
		// Valid json3 with no captions is an empty success; broken JSON keeps its error.
		return *jsonResult
	}

	format := FormatUnknown
	if strings.HasPrefix(trimmed, "WEBVTT") {
		format = FormatWebVTT
	}
	return Result{
		Format: format,
		Err:    fmt.Errorf("%w: no recognizable caption format", sterrors.ErrDecodeFailure),
	}
}

// json3 wire shapes.
type json3Payload struct {
	Events *[]json3Event `json:"events"`
}

type json3Event struct {
	TStartMs    float64        `json:"tStartMs"`
	DDurationMs float64        `json:"dDurationMs"`
	Segs        []json3Segment `json:"segs"`
}

type json3Segment struct {
	UTF8 string `json:"utf8"`
}

func decodeJSON3(payload string) Result {
	var p json3Payload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return Result{
			Format: FormatJSON3,
			Err:    fmt.Errorf("%w: invalid json3 payload: %v", sterrors.ErrDecodeFailure, err),
		}
	}
	if p.Events == nil {
		return Result{
			Format: FormatJSON3,
			Err:    fmt.Errorf("%w: json payload has no events", sterrors.ErrDecodeFailure),
		}
	}

	result := Result{
		Entries: make([]transcript.Entry, 0, len(*p.Events)),
		Format:  FormatJSON3,
	}

	for _, ev := range *p.Events {
		if len(ev.Segs) == 0 {
			continue
		}

		var text strings.Builder
		for _, seg := range ev.Segs {
			text.WriteString(seg.UTF8)
		}
		if strings.TrimSpace(text.String()) == "" {
			continue
		}

		entry, err := transcript.NewEntry(text.String(), ev.TStartMs/1000, ev.DDurationMs/1000)
		if err != nil {
			result.SkippedCues++
			continue
		}
		result.Entries = append(result.Entries, entry)
	}

	sortEntries(result.Entries)
	return result
}

// vttCue accumulates one cue block while scanning.
type vttCue struct {
	start, end float64
	valid      bool
	text       []string
}

// decodeWebVTT returns the decoded result and the number of cue headers seen.
// Zero headers means the payload is not cue-block shaped at all.
func decodeWebVTT(payload string) (Result, int) {
	result := Result{
		Entries: make([]transcript.Entry, 0),
		Format:  FormatWebVTT,
	}

	scanner := bufio.NewScanner(strings.NewReader(payload))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var current *vttCue
	headers := 0

	flush := func() {
		if current == nil {
			return
		}
		defer func() { current = nil }()

		if !current.valid || len(current.text) == 0 || current.end < current.start {
			result.SkippedCues++
			return
		}
		entry, err := transcript.NewEntry(strings.Join(current.text, " "), current.start, current.end-current.start)
		if err != nil {
			result.SkippedCues++
			return
		}
		result.Entries = append(result.Entries, entry)
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if strings.Contains(line, cueArrow) {
			flush()
			headers++
			current = parseCueHeader(line)
			continue
		}

		// A blank line ends the cue block
		if line == "" {
			flush()
			continue
		}

		// Header, NOTE and identifier lines outside a cue are ignored
		if current == nil {
			continue
		}

		if text := cleanCueText(line); text != "" {
			current.text = append(current.text, text)
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return Result{
			Format: FormatWebVTT,
			Err:    fmt.Errorf("%w: reading cues: %v", sterrors.ErrDecodeFailure, err),
		}, headers
	}

	sortEntries(result.Entries)
	return result, headers
}

// parseCueHeader parses "start --> end [settings]". Cue settings are ignored.
func parseCueHeader(line string) *vttCue {
	cue := &vttCue{}

	left, right, _ := strings.Cut(line, cueArrow)
	fields := strings.Fields(right)
	if len(fields) == 0 {
		return cue
	}

	start, err := transcript.ParseTimestamp(left)
	if err != nil {
		return cue
	}
	end, err := transcript.ParseTimestamp(fields[0])
	if err != nil {
		return cue
	}

	cue.start, cue.end, cue.valid = start, end, true
	return cue
}

func cleanCueText(line string) string {
	line = vttTagRegex.ReplaceAllString(line, "")
	line = html.UnescapeString(line)
	return strings.Join(strings.Fields(line), " ")
}

func sortEntries(entries []transcript.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Start < entries[j].Start
	})
}
