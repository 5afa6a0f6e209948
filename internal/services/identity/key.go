package identity

import (
	"strings"

	"github.com/ternarybob/tokenscope/internal/common"
	"github.com/ternarybob/tokenscope/internal/models"
)

// KeySeparator joins the parts of a credential identity key
const KeySeparator = "::"

// IdentityKey derives the stable slot for an extraction:
// domain::normalizedPath::type, plus ::headerName for auth tokens.
func IdentityKey(e *models.Extraction) string {
	parts := []string{
		strings.ToLower(e.Source.Domain),
		common.NormalizePath(e.Source.Path),
		string(e.Type),
	}
	if e.Type == models.ExtractionAuthToken && e.HeaderName != "" {
		parts = append(parts, e.HeaderName)
	}
	return strings.Join(parts, KeySeparator)
}
