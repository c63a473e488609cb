// Package transcript turns uploaded source files into normalized transcript
// text with ordered segments.
//
// SubRip (.srt) and WebVTT-style cue files keep their timings; plain text is
// split into paragraph segments without timings. Sequence numbers, cue
// settings and markup tags are dropped.
package transcript
