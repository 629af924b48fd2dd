// Package reference builds and parses unlock payment references of the form
// unlock_<timestampMillis>_<clientId>[_<tag>].
package reference

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"estateBack/internal/models"
)

const (
	Prefix    = "unlock"
	separator = "_"
	tagLen    = 16
)

// Parsed is a decoded reference.
type Parsed struct {
	Prefix          string
	TimestampMillis int64
	ClientID        int
	// Tag binds the reference to a property when a secret is configured.
	Tag string
}

// Base returns the reference without its binding tag.
func (p Parsed) Base() string {
	return Prefix + separator + strconv.FormatInt(p.TimestampMillis, 10) + separator + strconv.Itoa(p.ClientID)
}

// Generator produces references. It holds no state besides the optional secret.
type Generator struct {
	secret []byte
	now    func() time.Time
}

// NewGenerator returns a generator. An empty secret disables property binding.
func NewGenerator(secret string) *Generator {
	g := &Generator{now: time.Now}
	if secret != "" {
		g.secret = []byte(secret)
	}
	return g
}

// Binding reports whether references carry a property tag.
func (g *Generator) Binding() bool { return len(g.secret) > 0 }

// Generate returns unlock_<now_ms>_<clientID>.
func (g *Generator) Generate(clientID int) string {
	return Prefix + separator + strconv.FormatInt(g.now().UnixMilli(), 10) + separator + strconv.Itoa(clientID)
}

// GenerateFor generates a reference for clientID and, when binding is enabled,
// appends a tag tying it to propertyID.
func (g *Generator) GenerateFor(clientID, propertyID int) string {
	ref := g.Generate(clientID)
	if !g.Binding() {
		return ref
	}
	return ref + separator + g.tag(ref, propertyID)
}

// Check validates the binding tag of p against propertyID. Without a secret
// every reference passes.
func (g *Generator) Check(p Parsed, propertyID int) error {
	if !g.Binding() {
		return nil
	}
	if p.Tag == "" {
		return fmt.Errorf("%w: reference is not bound to a property", models.ErrInvalidReference)
	}
	expected := g.tag(p.Base(), propertyID)
	if !hmac.Equal([]byte(expected), []byte(p.Tag)) {
		return fmt.Errorf("%w: reference does not match property %d", models.ErrInvalidReference, propertyID)
	}
	return nil
}

func (g *Generator) tag(base string, propertyID int) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(base + "|" + strconv.Itoa(propertyID)))
	return hex.EncodeToString(mac.Sum(nil))[:tagLen]
}

// Parse decodes ref. It fails with models.ErrInvalidReference when fewer than
// three segments are present or a segment is malformed.
func Parse(ref string) (Parsed, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Parsed{}, fmt.Errorf("%w: empty reference", models.ErrInvalidReference)
	}
	parts := strings.Split(ref, separator)
	if len(parts) < 3 || len(parts) > 4 {
		return Parsed{}, fmt.Errorf("%w: %q", models.ErrInvalidReference, ref)
	}
	if parts[0] != Prefix {
		return Parsed{}, fmt.Errorf("%w: unexpected prefix %q", models.ErrInvalidReference, parts[0])
	}
	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || ts <= 0 {
		return Parsed{}, fmt.Errorf("%w: bad timestamp %q", models.ErrInvalidReference, parts[1])
	}
	clientID, err := strconv.Atoi(parts[2])
	if err != nil || clientID <= 0 {
		return Parsed{}, fmt.Errorf("%w: bad client id %q", models.ErrInvalidReference, parts[2])
	}
	p := Parsed{Prefix: parts[0], TimestampMillis: ts, ClientID: clientID}
	if len(parts) == 4 {
		if len(parts[3]) != tagLen {
			return Parsed{}, fmt.Errorf("%w: bad tag", models.ErrInvalidReference)
		}
		p.Tag = parts[3]
	}
	return p, nil
}
