package webhook

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ExtractedFields holds what could be recognised in a free-form submission.
type ExtractedFields struct {
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	Message    string
	PropertyID *uuid.UUID
}

// IsIncomplete reports whether the submission lacks a name or any contact method.
func (e ExtractedFields) IsIncomplete() bool {
	hasName := e.FirstName != "" || e.LastName != ""
	hasContact := e.Phone != "" || e.Email != ""
	return !hasName || !hasContact
}

// ContactName joins the name parts.
func (e ExtractedFields) ContactName() string {
	return strings.TrimSpace(e.FirstName + " " + e.LastName)
}

// ExtractFields matches form field labels against known patterns. Unknown
// fields are ignored.
func ExtractFields(data map[string]string) ExtractedFields {
	var result ExtractedFields
	var fullName string

	for key, value := range data {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}

		switch k := normalizeLabel(key); {
		case matchesAny(k, firstNamePatterns):
			result.FirstName = value
		case matchesAny(k, lastNamePatterns):
			result.LastName = value
		case matchesAny(k, fullNamePatterns):
			fullName = value
		case matchesAny(k, emailPatterns):
			if emailRegex.MatchString(value) {
				result.Email = strings.ToLower(value)
			}
		case matchesAny(k, phonePatterns):
			result.Phone = value
		case matchesAny(k, messagePatterns):
			result.Message = value
		case matchesAny(k, propertyPatterns):
			if id, err := uuid.Parse(value); err == nil {
				result.PropertyID = &id
			}
		}
	}

	// Separate name fields win over a combined one.
	if result.FirstName == "" && result.LastName == "" && fullName != "" {
		parts := strings.SplitN(fullName, " ", 2)
		result.FirstName = parts[0]
		if len(parts) > 1 {
			result.LastName = strings.TrimSpace(parts[1])
		}
	}

	return result
}

var (
	firstNamePatterns = []string{"firstname", "fname", "givenname"}
	lastNamePatterns  = []string{"lastname", "lname", "familyname", "surname"}
	fullNamePatterns  = []string{"name", "fullname", "yourname", "contactname"}
	emailPatterns     = []string{"email", "emailaddress", "mail"}
	phonePatterns     = []string{"phone", "tel", "telephone", "phonenumber", "mobile", "cell", "whatsapp"}
	messagePatterns   = []string{"message", "comment", "comments", "question", "enquiry", "inquiry", "notes", "description"}
	propertyPatterns  = []string{"propertyid", "property", "listingid", "listing"}
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	labelReplacer = strings.NewReplacer("-", "", "_", "", " ", "", ".", "")
)

func normalizeLabel(label string) string {
	return labelReplacer.Replace(strings.ToLower(strings.TrimSpace(label)))
}

func matchesAny(label string, patterns []string) bool {
	for _, p := range patterns {
		if label == p {
			return true
		}
	}
	return false
}
