// Package imageref parses and normalises the image references attached to
// civic reports. Images themselves live in an external blob store; reports
// only carry a reference to them.
//
// Accepted forms:
//
//	file:///storage/emulated/0/DCIM/pothole.jpg   (local file)
//	/storage/emulated/0/DCIM/pothole.jpg          (bare path, becomes file://)
//	content://media/external/images/media/42      (platform content provider)
//	data:image/jpeg;base64,/9j/4AAQSkZJRg...      (inline data)
//	https://cdn.example.org/reports/42.jpg         (remote)
package imageref

import (
	"fmt"
	"net/url"
	"strings"
)

// Kind classifies a reference by where the bytes live.
type Kind string

const (
	KindFile    Kind = "file"
	KindContent Kind = "content"
	KindData    Kind = "data"
	KindRemote  Kind = "remote"
)

// Ref is a parsed image reference.
type Ref struct {
	Kind Kind
	raw  string
}

// Parse validates raw and returns its normalised form.
func Parse(raw string) (*Ref, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("image reference must not be empty")
	}

	if strings.HasPrefix(s, "/") {
		s = "file://" + s
	}

	if strings.HasPrefix(strings.ToLower(s), "data:") {
		return parseData(s)
	}

	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid image reference: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		if u.Path == "" {
			return nil, fmt.Errorf("file reference %q has no path", raw)
		}
		return &Ref{Kind: KindFile, raw: s}, nil
	case "content":
		if u.Host == "" {
			return nil, fmt.Errorf("content reference %q has no authority", raw)
		}
		return &Ref{Kind: KindContent, raw: s}, nil
	case "http", "https":
		if u.Host == "" {
			return nil, fmt.Errorf("remote reference %q has no host", raw)
		}
		return &Ref{Kind: KindRemote, raw: s}, nil
	default:
		return nil, fmt.Errorf("unsupported image scheme %q", u.Scheme)
	}
}

// parseData accepts data:image/<subtype>[;params],<payload>.
func parseData(s string) (*Ref, error) {
	header, payload, ok := strings.Cut(s[len("data:"):], ",")
	if !ok || payload == "" {
		return nil, fmt.Errorf("inline image has no payload")
	}
	mediaType, _, _ := strings.Cut(header, ";")
	if !strings.HasPrefix(strings.ToLower(mediaType), "image/") {
		return nil, fmt.Errorf("inline data has non-image media type %q", mediaType)
	}
	return &Ref{Kind: KindData, raw: s}, nil
}

// String returns the normalised reference.
func (r *Ref) String() string { return r.raw }

// Local reports whether the bytes are still on the device and have not been
// uploaded yet.
func (r *Ref) Local() bool { return r.Kind != KindRemote }

// Normalize parses raw and returns its normalised string form.
func Normalize(raw string) (string, error) {
	r, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return r.String(), nil
}

// Valid reports whether raw is an accepted image reference.
func Valid(raw string) bool {
	_, err := Parse(raw)
	return err == nil
}

// MustParse parses a reference and panics on error. Useful in tests.
func MustParse(raw string) *Ref {
	r, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return r
}
