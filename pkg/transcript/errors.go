package transcript

import (
	"errors"
	"fmt"
)

var (
	// ErrNoTranscript signals the source has no transcript for the item.
	ErrNoTranscript = errors.New("no transcript available")

	// ErrUnsupportedLanguage signals the requested language is absent.
	ErrUnsupportedLanguage = errors.New("transcript language not available")
)

// NoTranscriptError identifies the content item that lacks a transcript.
type NoTranscriptError struct {
	ContentID string
}

func (e *NoTranscriptError) Error() string {
	return fmt.Sprintf("no transcript available for content %s", e.ContentID)
}

func (e *NoTranscriptError) Unwrap() error {
	return ErrNoTranscript
}

// UnsupportedLanguageError identifies the missing language.
type UnsupportedLanguageError struct {
	ContentID string
	Language  string
}

func (e *UnsupportedLanguageError) Error() string {
	return fmt.Sprintf("transcript for content %s not available in language %q", e.ContentID, e.Language)
}

func (e *UnsupportedLanguageError) Unwrap() error {
	return ErrUnsupportedLanguage
}

// IsNoTranscript reports whether err means the item has no transcript.
func IsNoTranscript(err error) bool {
	return errors.Is(err, ErrNoTranscript)
}

// IsUnsupportedLanguage reports whether err means the language is absent.
func IsUnsupportedLanguage(err error) bool {
	return errors.Is(err, ErrUnsupportedLanguage)
}
