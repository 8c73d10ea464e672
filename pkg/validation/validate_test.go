package validation

import (
	"strings"
	"testing"

	"pawtalk/pkg/models"
)

func TestContentBounds(t *testing.T) {
	if err := ValidateContent(""); err == nil {
		t.Fatal("empty content accepted")
	}
	if err := ValidateContent(strings.Repeat("a", 10000)); err != nil {
		t.Fatalf("content at the limit rejected: %v", err)
	}
	if err := ValidateContent(strings.Repeat("a", 10001)); err == nil {
		t.Fatal("over-limit content accepted")
	}
}

func TestContentCountsRunesNotBytes(t *testing.T) {
	// 10000 multibyte runes are within the limit even though the byte
	// count is far past it
	if err := ValidateContent(strings.Repeat("é", 10000)); err != nil {
		t.Fatalf("multibyte content at the rune limit rejected: %v", err)
	}
}

func TestAttachmentPolicy(t *testing.T) {
	good := models.Attachment{ID: "att_1", Filename: "luna.jpg", MimeType: "image/jpeg", Size: 1024}
	if err := ValidateAttachments([]models.Attachment{good}); err != nil {
		t.Fatalf("valid attachment rejected: %v", err)
	}

	many := make([]models.Attachment, 11)
	for i := range many {
		many[i] = good
	}
	if err := ValidateAttachments(many); err == nil {
		t.Fatal("11 attachments accepted")
	}

	big := good
	big.Size = 25<<20 + 1
	if err := ValidateAttachments([]models.Attachment{big}); err == nil {
		t.Fatal("oversized attachment accepted")
	}

	incomplete := good
	incomplete.MimeType = ""
	if err := ValidateAttachments([]models.Attachment{incomplete}); err == nil {
		t.Fatal("attachment without mime type accepted")
	}
}

func TestFormatEnum(t *testing.T) {
	for _, f := range []models.ContentFormat{"", models.FormatPlain, models.FormatRich} {
		if err := ValidateFormat(f); err != nil {
			t.Fatalf("format %q rejected: %v", f, err)
		}
	}
	if err := ValidateFormat("markdown"); err == nil {
		t.Fatal("unknown format accepted")
	}
}

func TestConfiguredLimitsOverrideDefaults(t *testing.T) {
	SetLimits(Limits{MaxContentRunes: 5})
	defer SetLimits(Limits{})

	if err := ValidateContent("123456"); err == nil {
		t.Fatal("configured limit not applied")
	}
	if err := ValidateContent("12345"); err != nil {
		t.Fatalf("content within configured limit rejected: %v", err)
	}
	// zero-valued fields keep their defaults
	if err := ValidateAttachments(make([]models.Attachment, 11)); err == nil {
		t.Fatal("attachment default limit lost")
	}
}
