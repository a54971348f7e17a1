package emit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

// DefaultHashLength is the number of hex characters [hash] expands to.
const DefaultHashLength = 20

var tokenRe = regexp.MustCompile(`\[([a-z]+)(?::(\d+))?\]`)

// ContentHash returns the hex SHA-256 of content.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// ValidateTemplate checks that tpl only uses known tokens.
func ValidateTemplate(tpl string) error {
	if strings.TrimSpace(tpl) == "" {
		return ferrors.ConfigError("empty file name template").Build()
	}
	for _, m := range tokenRe.FindAllStringSubmatch(tpl, -1) {
		if _, err := hashLength(m[1], m[2]); err != nil {
			return ferrors.ConfigError(fmt.Sprintf("template %q: %v", tpl, err)).
				WithContext("template", tpl).Build()
		}
	}
	return nil
}

func hashLength(token, length string) (int, error) {
	switch token {
	case "name", "id", "ext":
		if length != "" {
			return 0, fmt.Errorf("token [%s] takes no length", token)
		}
		return 0, nil
	case "hash":
		if length == "" {
			return DefaultHashLength, nil
		}
		n, err := strconv.Atoi(length)
		if err != nil || n < 1 || n > sha256.Size*2 {
			return 0, fmt.Errorf("invalid hash length %q", length)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unknown token [%s]", token)
	}
}

// Render substitutes the tokens of tpl for a. The same content always
// yields the same [hash].
func Render(tpl string, a *Artifact) (string, error) {
	if err := ValidateTemplate(tpl); err != nil {
		return "", err
	}
	var hash string
	out := tokenRe.ReplaceAllStringFunc(tpl, func(tok string) string {
		m := tokenRe.FindStringSubmatch(tok)
		switch m[1] {
		case "name":
			return a.Name
		case "id":
			return strconv.Itoa(a.ID)
		case "ext":
			return a.Ext
		default:
			if hash == "" {
				hash = ContentHash(a.Content)
			}
			n, _ := hashLength(m[1], m[2])
			return hash[:n]
		}
	})
	return out, nil
}
