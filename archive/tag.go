package archive

// Tag is a four character section or chunk identifier.
type Tag [4]byte

// NewTag builds a tag from the first four bytes of s, zero filling when s
// is shorter.
func NewTag(s string) Tag {
	var t Tag
	copy(t[:], s)
	return t
}

func (t Tag) String() string { return string(t[:]) }

var (
	TagRIFF = NewTag("RIFF")
	TagWAVE = NewTag("WAVE")
	TagFMT  = NewTag("fmt ")
	TagDATA = NewTag("data")
)
