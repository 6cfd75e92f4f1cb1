package elevation

import (
	"fmt"
	"strconv"
	"strings"
)

// wellKnownSRSs maps the well known names accepted by GDAL's
// OSRSetFromUserInput to their EPSG equivalents.
var wellKnownSRSs = map[string]string{
	"WGS84":  "EPSG:4326",
	"WGS72":  "EPSG:4322",
	"NAD27":  "EPSG:4267",
	"NAD83":  "EPSG:4269",
	"CRS84":  "OGC:CRS84",
	"CRS83":  "OGC:CRS83",
	"CRS27":  "OGC:CRS27",
	"ETRS89": "EPSG:4258",
}

var wktKeywords = []string{
	"GEOGCS[", "PROJCS[", "GEOCCS[", "COMPD_CS[", "LOCAL_CS[", "VERT_CS[",
	"GEOGCRS[", "GEODCRS[", "PROJCRS[", "COMPOUNDCRS[", "BOUNDCRS[", "VERTCRS[",
	"GEODETICCRS[", "PROJECTEDCRS[", "ENGCRS[",
}

// SanitizeSRS converts a user supplied spatial reference system into a
// canonical definition understood by PROJ. It accepts well known names (e.g.
// WGS84), AUTHORITY:CODE pairs, bare EPSG codes, PROJ strings, WKT, PROJJSON,
// and OGC URNs and URLs.
func SanitizeSRS(userInput string) (string, error) {
	s := strings.TrimSpace(userInput)
	switch upper := strings.ToUpper(s); {
	case s == "":
		return "", fmt.Errorf("%w: empty", ErrInvalidSRS)
	case wellKnownSRSs[upper] != "":
		return wellKnownSRSs[upper], nil
	case strings.HasPrefix(s, "+") || strings.HasPrefix(s, "proj="):
		if !strings.HasPrefix(s, "+") {
			s = "+" + s
		}
		if !strings.Contains(s, "+type=crs") {
			s += " +type=crs"
		}
		return s, nil
	case strings.HasPrefix(s, "{"):
		return s, nil
	case isWKT(upper):
		return s, nil
	case strings.HasPrefix(upper, "URN:OGC:DEF:"),
		strings.HasPrefix(upper, "HTTP://WWW.OPENGIS.NET/DEF/"),
		strings.HasPrefix(upper, "HTTP://OPENGIS.NET/DEF/"):
		return s, nil
	}

	if code, err := strconv.Atoi(s); err == nil {
		if code <= 0 {
			return "", fmt.Errorf("%w: %q", ErrInvalidSRS, userInput)
		}
		return "EPSG:" + strconv.Itoa(code), nil
	}

	authority, code, ok := strings.Cut(s, ":")
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidSRS, userInput)
	}
	code = strings.TrimPrefix(code, ":") // ESRI::102100 style.
	authority = strings.ToUpper(strings.TrimSpace(authority))
	code = strings.TrimSpace(code)
	if authority == "EPSGA" {
		authority = "EPSG"
	}
	if !isIdentifier(authority) || !isIdentifier(code) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSRS, userInput)
	}
	return authority + ":" + code, nil
}

func isWKT(upper string) bool {
	for _, keyword := range wktKeywords {
		if strings.HasPrefix(upper, keyword) {
			return strings.HasSuffix(upper, "]")
		}
	}
	return false
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case 'A' <= r && r <= 'Z', 'a' <= r && r <= 'z', '0' <= r && r <= '9', r == '_', r == '-', r == '.':
		default:
			return false
		}
	}
	return true
}
