package pos

import (
	"regexp"
	"strings"
)

var uuidPattern = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// ExtractSizeID returns the POS size id embedded in a variant external id.
// Variant ids are either a bare size UUID or "<productId>_<sizeId>".
func ExtractSizeID(externalID string) string {
	value := strings.TrimSpace(externalID)
	if value == "" {
		return ""
	}
	if idx := strings.LastIndex(value, "_"); idx >= 0 {
		suffix := value[idx+1:]
		if uuidPattern.MatchString(suffix) {
			return suffix
		}
		return ""
	}
	if uuidPattern.MatchString(value) {
		return value
	}
	return ""
}

// ProductID returns the product part of a composite "<productId>_<sizeId>" id.
func ProductID(externalID string) string {
	value := strings.TrimSpace(externalID)
	if idx := strings.LastIndex(value, "_"); idx >= 0 {
		return value[:idx]
	}
	return value
}

// VariantExternalID joins a product and size into the variant key.
func VariantExternalID(productID string, sizeID *string) string {
	if sizeID == nil || *sizeID == "" {
		return productID
	}
	return productID + "_" + *sizeID
}

// ModifierExternalID scopes a modifier product to its group.
func ModifierExternalID(groupID, productID string) string {
	return groupID + "_" + productID
}
