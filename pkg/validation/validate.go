package validation

import (
	"fmt"

	"pawtalk/pkg/models"
)

// Limits bounds message content and attachments. Zero values fall back to
// the defaults below, so an unconfigured server still enforces policy.
type Limits struct {
	MaxContentRunes    int
	MaxAttachments     int
	MaxAttachmentBytes int64
}

const (
	defaultMaxContentRunes    = 10000
	defaultMaxAttachments     = 10
	defaultMaxAttachmentBytes = 25 << 20
)

var limits = Limits{}

// SetLimits installs the active policy limits. Called once at startup.
func SetLimits(l Limits) { limits = l }

func maxContent() int {
	if limits.MaxContentRunes > 0 {
		return limits.MaxContentRunes
	}
	return defaultMaxContentRunes
}

func maxAttachments() int {
	if limits.MaxAttachments > 0 {
		return limits.MaxAttachments
	}
	return defaultMaxAttachments
}

func maxAttachmentBytes() int64 {
	if limits.MaxAttachmentBytes > 0 {
		return limits.MaxAttachmentBytes
	}
	return defaultMaxAttachmentBytes
}

// ValidateContent checks message text against the content length policy.
func ValidateContent(content string) error {
	n := len([]rune(content))
	if n < 1 {
		return fmt.Errorf("content is required")
	}
	if n > maxContent() {
		return fmt.Errorf("content too long: %d > %d", n, maxContent())
	}
	return nil
}

// ValidateAttachments checks attachment count, metadata completeness and
// per-attachment size.
func ValidateAttachments(atts []models.Attachment) error {
	if len(atts) > maxAttachments() {
		return fmt.Errorf("too many attachments: %d > %d", len(atts), maxAttachments())
	}
	for _, a := range atts {
		if a.ID == "" || a.Filename == "" || a.MimeType == "" {
			return fmt.Errorf("invalid attachment: id, filename and mime_type are required")
		}
		if a.Size < 0 || a.Size > maxAttachmentBytes() {
			return fmt.Errorf("attachment %s exceeds size limit: %d > %d", a.ID, a.Size, maxAttachmentBytes())
		}
	}
	return nil
}

// ValidateFormat checks the content format enum, defaulting empty to plain.
func ValidateFormat(f models.ContentFormat) error {
	switch f {
	case "", models.FormatPlain, models.FormatRich:
		return nil
	}
	return fmt.Errorf("invalid content format: %q", f)
}

// ValidateMessage runs all message-level checks.
func ValidateMessage(m models.Message) error {
	if err := ValidateContent(m.Content); err != nil {
		return err
	}
	if err := ValidateFormat(m.Format); err != nil {
		return err
	}
	return ValidateAttachments(m.Attachments)
}
