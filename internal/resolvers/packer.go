package resolvers

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var packedBlockRe = regexp.MustCompile(`(?s)eval\(function\(p,a,c,k,e,d\)\{.*?\}\('(.*)',(\d+),(\d+),'(.*?)'\.split\('\|'\)`)

// unpack implements the Dean Edwards "packer" decoder: base-a token
// substitution where the payload references dictionary words by their
// base-a index and the dictionary is a pipe-separated split string.
func unpack(payload string, base, count int, dictRaw string) (string, error) {
	dict := strings.Split(dictRaw, "|")
	if count > len(dict) {
		return "", fmt.Errorf("packer: dictionary shorter than count")
	}

	var out strings.Builder
	var token strings.Builder
	inToken := false

	for _, r := range payload {
		if isWordChar(r) {
			token.WriteRune(r)
			inToken = true
			continue
		}
		if inToken {
			out.WriteString(substituteToken(token.String(), dict, base))
			token.Reset()
			inToken = false
		}
		out.WriteRune(r)
	}
	if inToken {
		out.WriteString(substituteToken(token.String(), dict, base))
	}
	return out.String(), nil
}

func substituteToken(tok string, dict []string, base int) string {
	idx, err := strconv.ParseInt(tok, base, 64)
	if err != nil || int(idx) >= len(dict) || dict[idx] == "" {
		return tok
	}
	return dict[idx]
}

func isWordChar(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// unpackFromHTML locates a packed eval(function(p,a,c,k,e,d){...}(...))
// block in raw page text and returns the unpacked source.
func unpackFromHTML(html string) (string, error) {
	m := packedBlockRe.FindStringSubmatch(html)
	if m == nil {
		return "", fmt.Errorf("packer: no packed block found")
	}
	payload := m[1]
	base, err := strconv.Atoi(m[2])
	if err != nil {
		return "", fmt.Errorf("packer: bad base: %w", err)
	}
	count, err := strconv.Atoi(m[3])
	if err != nil {
		return "", fmt.Errorf("packer: bad count: %w", err)
	}
	dict := m[4]

	payload = unescapeJS(payload)
	return unpack(payload, base, count, dict)
}

func unescapeJS(s string) string {
	return strings.NewReplacer(`\'`, `'`, `\\`, `\`).Replace(s)
}
