// Package captions decodes raw caption payloads into ordered transcript entries.
//
// Two wire formats are recognized by sniffing the content: the JSON
// structured-event format (json3) and WebVTT cue blocks. Decode never panics
// and never returns a bare error; the outcome is reported through Result so
// that "no captions" and "could not decode" stay distinguishable.
package captions

import "github.com/otherjamesbrown/studynotes-cli/pkg/transcript"

// Format identifies the wire format of a caption payload.
type Format string

const (
	FormatJSON3   Format = "json3"
	FormatWebVTT  Format = "webvtt"
	FormatUnknown Format = "unknown"
)

// Result is the outcome of decoding one payload.
type Result struct {
	Entries     []transcript.Entry
	Format      Format
	SkippedCues int

	// Err wraps errors.ErrDecodeFailure when the payload was not recognized.
	Err error
}

// OK reports whether the payload was decoded, even if it held no captions.
func (r Result) OK() bool {
	return r.Err == nil
}

// Empty reports a recognized payload that contained no captions.
func (r Result) Empty() bool {
	return r.Err == nil && len(r.Entries) == 0
}

// TotalDuration returns the end offset of the last entry in seconds.
func (r Result) TotalDuration() float64 {
	return transcript.TotalDuration(r.Entries)
}

// FullText returns every entry's text joined by single spaces.
func (r Result) FullText() string {
	return transcript.JoinText(r.Entries)
}
