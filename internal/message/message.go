package message

import "unicode/utf8"

const (
	// GroupThreshold is the face count from which the group template is used.
	GroupThreshold = 3
	// MaxLength is the status length limit in characters.
	MaxLength = 140
	// TitleSeparator joins the template and the recorder title.
	TitleSeparator = " => "

	GroupTemplate = "3人からがカップリング😱😱😱😱😱😱"
	PairTemplate  = "百合をありがとう…ありがとう…😭😭😭😭😭😭"
)

// Compose builds the status for count detected faces. Counts below the
// threshold, zero included, use the pair template. A non-empty title is
// appended after TitleSeparator.
func Compose(count int, title string) string {
	msg := PairTemplate
	if count >= GroupThreshold {
		msg = GroupTemplate
	}
	if title != "" {
		msg += TitleSeparator + title
	}
	return msg
}

// Length counts characters, not bytes.
func Length(msg string) int {
	return utf8.RuneCountInString(msg)
}

// Fits reports whether msg can be posted.
func Fits(msg string) bool {
	return Length(msg) <= MaxLength
}
