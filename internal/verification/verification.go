// Package verification builds the check-in codes shown on events and
// practice sessions. A code is not a secret; it only binds a resource id to
// the kind of resource it checks into.
package verification

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/skip2/go-qrcode"

	"campusconnect/internal/apperr"
)

// Resource types a code can check into.
const (
	TypeAttendance = "attendance" // events
	TypePractice   = "practice"   // practice sessions
)

const imageSize = 256

// Code is the payload carried by a check-in code.
type Code struct {
	ResourceID   string `json:"resourceId"`
	ResourceType string `json:"resourceType"`
}

// Issue returns the code for a resource. The same inputs always yield the same code.
func Issue(resourceID, resourceType string) Code {
	return Code{ResourceID: resourceID, ResourceType: resourceType}
}

// String is the plain-text form, also encoded in the image.
func (c Code) String() string {
	b, _ := json.Marshal(c)
	return string(b)
}

// Render encodes the code as a PNG QR image in a data URL.
func Render(c Code) (string, error) {
	png, err := qrcode.Encode(c.String(), qrcode.Medium, imageSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// Parse reads the plain-text form of a code.
func Parse(text string) (Code, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Code{}, apperr.Validation("verification code is empty")
	}
	var c Code
	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return Code{}, apperr.Wrap(apperr.KindValidation, "malformed verification code", err)
	}
	if c.ResourceID == "" {
		return Code{}, apperr.Validation("verification code has no resource id")
	}
	switch c.ResourceType {
	case TypeAttendance, TypePractice:
	default:
		return Code{}, apperr.Validation("unknown verification code type %q", c.ResourceType)
	}
	return c, nil
}

// Expect fails unless the code is for resourceType and, when given, resourceID.
func (c Code) Expect(resourceType, resourceID string) error {
	if c.ResourceType != resourceType {
		return apperr.Validation("verification code is for %s, not %s", c.ResourceType, resourceType)
	}
	if resourceID != "" && c.ResourceID != resourceID {
		return apperr.Validation("verification code belongs to another resource")
	}
	return nil
}
