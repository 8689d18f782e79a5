// Package format holds the small string builders the app uses for batch
// labels, SKU codes and human-friendly durations.
package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
)

// BatchLabel builds the printed batch label: PREFIX-YYYYMM-NNN.
// The prefix comes from the recipe, the sequence from the org's monthly
// counter. "SOAP-202608-007" sorts correctly and survives a sharpie.
func BatchLabel(prefix string, period time.Time, sequence int) string {
	p := strings.ToUpper(strings.TrimSpace(prefix))
	if p == "" {
		p = "BATCH"
	}
	return fmt.Sprintf("%s-%s-%03d", p, period.Format("200601"), sequence)
}

// LabelPeriod is the counter bucket for a given time, e.g. "202608".
func LabelPeriod(t time.Time) string {
	return t.Format("200601")
}

// SKUCode builds a sku code from org slug, product name, variant and size:
// "willow-soapery" + "Lavender Bar" + "Gift" + 120 g
// -> "WILLOW-SOAPERY-LAVENDER-BAR-GIFT-120G".
func SKUCode(orgSlug, productName, variantName string, sizeValue float64, sizeUnit string) string {
	parts := []string{
		slug.Make(orgSlug),
		slug.Make(productName),
	}
	if v := slug.Make(variantName); v != "" {
		parts = append(parts, v)
	}
	parts = append(parts, sizeToken(sizeValue, sizeUnit))
	return strings.ToUpper(strings.Join(parts, "-"))
}

// ContainerName is the display name for a container item:
// "4oz Amber Jar" style, trimming trailing zeros on the size.
func ContainerName(sizeValue float64, sizeUnit, material, style string) string {
	parts := []string{sizeToken(sizeValue, sizeUnit)}
	if material = strings.TrimSpace(material); material != "" {
		parts = append(parts, material)
	}
	if style = strings.TrimSpace(style); style != "" {
		parts = append(parts, style)
	}
	return strings.Join(parts, " ")
}

// sizeToken renders "120g", "4oz", "2.5l" - numeric with unit, no space,
// trailing zeros trimmed.
func sizeToken(value float64, unit string) string {
	s := fmt.Sprintf("%.2f", value)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s + strings.ToLower(strings.TrimSpace(unit))
}
