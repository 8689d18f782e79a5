package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBatchLabel(t *testing.T) {
	aug := time.Date(2026, time.August, 14, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "SOAP-202608-007", BatchLabel("SOAP", aug, 7))
	assert.Equal(t, "SOAP-202608-123", BatchLabel("soap", aug, 123))
	assert.Equal(t, "SOAP-202608-1234", BatchLabel("SOAP", aug, 1234), "sequence grows past three digits instead of truncating")
	assert.Equal(t, "BATCH-202608-001", BatchLabel("", aug, 1), "empty prefix falls back")
	assert.Equal(t, "BATCH-202608-001", BatchLabel("  ", aug, 1))
}

func TestLabelPeriod(t *testing.T) {
	assert.Equal(t, "202608", LabelPeriod(time.Date(2026, time.August, 31, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, "202601", LabelPeriod(time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)))
}

func TestSKUCode(t *testing.T) {
	assert.Equal(t,
		"WILLOW-SOAPERY-LAVENDER-BAR-GIFT-120G",
		SKUCode("willow-soapery", "Lavender Bar", "Gift", 120, "g"))

	// No variant: the token is simply omitted.
	assert.Equal(t,
		"WILLOW-SOAPERY-LAVENDER-BAR-120G",
		SKUCode("willow-soapery", "Lavender Bar", "", 120, "g"))

	// Fractional sizes keep their meaningful digits only.
	assert.Equal(t,
		"ACME-BODY-BUTTER-TRAVEL-2.5OZ",
		SKUCode("Acme", "Body Butter", "Travel", 2.5, "oz"))
}

func TestContainerName(t *testing.T) {
	assert.Equal(t, "4oz Amber Jar", ContainerName(4, "oz", "Amber", "Jar"))
	assert.Equal(t, "120g Tin", ContainerName(120, "g", "", "Tin"))
	assert.Equal(t, "2.5l", ContainerName(2.5, "L", "", ""))
}

func TestHumanDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{30 * time.Second, "just now"},
		{-5 * time.Minute, "just now"},
		{time.Minute, "1 minute"},
		{45 * time.Minute, "45 minutes"},
		{90 * time.Minute, "1 hour"},
		{26 * time.Hour, "1 day"},
		{6 * 24 * time.Hour, "6 days"},
		{10 * 24 * time.Hour, "1 week"},
		{45 * 24 * time.Hour, "1 month"},
		{100 * 24 * time.Hour, "3 months"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HumanDuration(tc.in), "duration %v", tc.in)
	}
}
