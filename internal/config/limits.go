package config

const (
	// MaxTitleLength is the maximum length for document titles.
	MaxTitleLength = 255

	// MaxIconLength bounds the icon glyph in runes. Emoji with skin tone and
	// ZWJ sequences need more than one rune.
	MaxIconLength = 16

	// MaxCoverImageRefLength bounds the stored cover URL.
	MaxCoverImageRefLength = 2048

	// MaxContentLength bounds the serialized editor payload.
	MaxContentLength = 4 << 20

	// MaxCoverImageBytes bounds uploaded cover images.
	MaxCoverImageBytes = 8 << 20

	// MaxSearchQueryLength bounds the title filter on the search listing.
	MaxSearchQueryLength = 200
)
