package resolvers

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const remoteAPIEndpoint = "https://g.api.mega.co.nz/cs"

// ResolveRemoteAPI handles the AES-keyed, ASN-bound host family (the
// Mega.nz-style API: the node id travels in the embed URL, the key in the
// URL fragment). The CDN URL this API hands back is bound to the caller's
// ASN, so SPEC_FULL §4.7's download-URL policy enqueues the *embed* URL
// for these hosts and has the worker re-resolve from its own network.
func ResolveRemoteAPI(ctx context.Context, embedURL string) (*Result, error) {
	nodeID, err := parseNodeID(embedURL)
	if err != nil {
		return nil, err
	}

	reqID := make([]byte, 6)
	_, _ = rand.Read(reqID)

	u, _ := url.Parse(remoteAPIEndpoint)
	q := u.Query()
	q.Set("id", hex.EncodeToString(reqID))
	u.RawQuery = q.Encode()

	body, err := json.Marshal([]map[string]any{{"a": "g", "g": 1, "p": nodeID}})
	if err != nil {
		return nil, fmt.Errorf("remoteapi: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("remoteapi: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remoteapi: request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("remoteapi: read body: %w", err)
	}

	var results []json.RawMessage
	if err := json.Unmarshal(respBody, &results); err != nil {
		return nil, fmt.Errorf("remoteapi: decode: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("remoteapi: empty response")
	}

	var errCode int
	if err := json.Unmarshal(results[0], &errCode); err == nil {
		return nil, apiErrorFor(errCode)
	}

	var fileResp struct {
		G string `json:"g"`
	}
	if err := json.Unmarshal(results[0], &fileResp); err != nil || fileResp.G == "" {
		return nil, fmt.Errorf("remoteapi: no direct url in response")
	}

	return &Result{DirectURL: fileResp.G, RequiresEmbedEnqueue: true}, nil
}

func apiErrorFor(code int) error {
	switch code {
	case -9:
		return fmt.Errorf("remoteapi: not found (-9)")
	case -17:
		return fmt.Errorf("remoteapi: too many connections (-17)")
	case -3, -4:
		return fmt.Errorf("remoteapi: temporary eagain (%d)", code)
	default:
		return fmt.Errorf("remoteapi: error code %d", code)
	}
}

func parseNodeID(embedURL string) (string, error) {
	u, err := url.Parse(embedURL)
	if err != nil {
		return "", fmt.Errorf("remoteapi: parse embed url: %w", err)
	}
	frag := u.Fragment
	frag = strings.TrimPrefix(frag, "!")
	parts := strings.SplitN(frag, "!", 2)
	if len(parts) == 0 || parts[0] == "" {
		return "", fmt.Errorf("remoteapi: no node id in fragment")
	}
	return parts[0], nil
}

// KeyAndIVFromFragment derives the AES-128-CTR key and IV from the
// fragment's key blob, following the XOR-halves scheme: the 32-byte key
// blob XORs its own two 16-byte halves into the AES key, and bytes 16-24
// of the blob (before XOR) supply the counter/IV.
func KeyAndIVFromFragment(embedURL string) (key, iv []byte, err error) {
	u, err := url.Parse(embedURL)
	if err != nil {
		return nil, nil, err
	}
	frag := strings.TrimPrefix(u.Fragment, "!")
	parts := strings.SplitN(frag, "!", 2)
	if len(parts) < 2 {
		return nil, nil, fmt.Errorf("remoteapi: no key in fragment")
	}

	blob, err := base64URLDecodeMega(parts[1])
	if err != nil {
		return nil, nil, fmt.Errorf("remoteapi: decode key blob: %w", err)
	}
	if len(blob) < 32 {
		return nil, nil, fmt.Errorf("remoteapi: key blob too short")
	}

	key = make([]byte, 16)
	for i := 0; i < 16; i++ {
		key[i] = blob[i] ^ blob[i+16]
	}
	iv = append([]byte{}, blob[16:24]...)
	iv = append(iv, 0, 0, 0, 0, 0, 0, 0, 0) // CTR counter starts at 0
	return key, iv, nil
}

func base64URLDecodeMega(s string) ([]byte, error) {
	s = strings.ReplaceAll(s, "-", "+")
	s = strings.ReplaceAll(s, "_", "/")
	for len(s)%4 != 0 {
		s += "="
	}
	return base64.StdEncoding.DecodeString(s)
}
