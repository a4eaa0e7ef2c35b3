package bundle

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"widget-controlplane/services/license"
)

// Sentinel comments demarcating the flag injection region inside the base
// bundle. The external build step emits them exactly once each; block
// comments survive minification.
const (
	StartMarker = "/* __LICENSE_FLAGS_START__ */"
	EndMarker   = "/* __LICENSE_FLAGS_END__ */"
)

// ErrMarkerNotFound indicates the base bundle is missing a sentinel marker.
// That is a build/template defect, never a user-input problem.
var ErrMarkerNotFound = errors.New("license flag marker not found in bundle")

// FlagsJSON serializes the license's entitlement flags into a JSON string.
func FlagsJSON(lic *license.License) (string, error) {
	b, err := json.Marshal(lic.Flags())
	if err != nil {
		return "", fmt.Errorf("marshal entitlement flags: %w", err)
	}
	return string(b), nil
}

// InjectLicenseFlags replaces the region from the first start marker through
// the first end marker (inclusive) with a single global-scope assignment of
// the flags JSON. Everything outside the region is preserved byte-for-byte,
// so the result works for minified and pretty-printed bundles alike. If the
// bundle contains more than one marker pair, only the first is replaced;
// later pairs are left untouched.
func InjectLicenseFlags(bundleSource string, lic *license.License) (string, error) {
	start := strings.Index(bundleSource, StartMarker)
	if start < 0 {
		return "", fmt.Errorf("%w: missing start marker", ErrMarkerNotFound)
	}

	rest := bundleSource[start+len(StartMarker):]
	endRel := strings.Index(rest, EndMarker)
	if endRel < 0 {
		return "", fmt.Errorf("%w: missing end marker", ErrMarkerNotFound)
	}
	end := start + len(StartMarker) + endRel + len(EndMarker)

	flags, err := FlagsJSON(lic)
	if err != nil {
		return "", err
	}

	assignment := "window.__WIDGET_LICENSE__ = " + flags + ";"

	return bundleSource[:start] + assignment + bundleSource[end:], nil
}
