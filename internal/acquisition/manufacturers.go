package acquisition

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dshills/manualrag/pkg/types"
)

// URLTemplate builds a candidate owner's-manual URL from year and model
type URLTemplate func(year int, model string) string

// Templates maps a normalised make to its URL template
type Templates map[string]URLTemplate

var (
	slugRe = regexp.MustCompile(`[^a-z0-9]+`)

	makeAliases = map[string]string{
		"chevy":       "chevrolet",
		"vw":          "volkswagen",
		"volks wagen": "volkswagen",
	}
)

// DefaultTemplates covers the manufacturers with predictable manual URLs
func DefaultTemplates() Templates {
	return Templates{
		"toyota": func(year int, model string) string {
			return fmt.Sprintf("https://www.toyota.com/t3Portal/document/om-s/%d/%s/%d-%s-owners-manual.pdf",
				year, slug(model, "-"), year, slug(model, "-"))
		},
		"honda": func(year int, model string) string {
			return fmt.Sprintf("https://techinfo.honda.com/rjanisis/pubs/OM/%d/%s/%d_%s_Owners_Manual.pdf",
				year, slug(model, ""), year, slug(model, "_"))
		},
		"ford": func(year int, model string) string {
			return fmt.Sprintf("https://www.fordservicecontent.com/Ford_Content/vdirsnet/OwnerManual/Home/Content?variantid=%d-%s&languageCode=en&countryCode=USA&format=pdf",
				year, slug(model, "-"))
		},
		"chevrolet": func(year int, model string) string {
			return fmt.Sprintf("https://www.chevrolet.com/content/dam/chevrolet/na/us/english/index/owners/manuals/%d/%d-chevrolet-%s-owners-manual.pdf",
				year, year, slug(model, "-"))
		},
		"nissan": func(year int, model string) string {
			return fmt.Sprintf("https://owners.nissanusa.com/content/techpub/ManualsAndGuides/%s/%d/%d-%s-owner-manual.pdf",
				slug(model, ""), year, year, slug(model, "-"))
		},
		"hyundai": func(year int, model string) string {
			return fmt.Sprintf("https://owners.hyundaiusa.com/content/dam/hyundai/us/myhyundai/manuals/%d/%s/%d-%s-owners-manual.pdf",
				year, slug(model, "-"), year, slug(model, "-"))
		},
		"kia": func(year int, model string) string {
			return fmt.Sprintf("https://www.kia.com/us/content/dam/kia/us/owners/manuals/%d/%s/%d-%s-owners-manual.pdf",
				year, slug(model, "-"), year, slug(model, "-"))
		},
		"subaru": func(year int, model string) string {
			return fmt.Sprintf("https://www.subaru.com/content/dam/subaru/owners/manuals/%d/%d-%s-owners-manual.pdf",
				year, year, slug(model, "-"))
		},
		"mazda": func(year int, model string) string {
			return fmt.Sprintf("https://www.mazdausa.com/static/manuals/%d/%s/%d-%s-owners-manual.pdf",
				year, slug(model, "-"), year, slug(model, "-"))
		},
		"volkswagen": func(year int, model string) string {
			return fmt.Sprintf("https://www.vw.com/content/dam/onehub_pkw/importers/us/owners/manuals/%d/%s-%d-owners-manual.pdf",
				year, slug(model, "-"), year)
		},
	}
}

// URL returns the candidate for v; unknown makes return false
func (t Templates) URL(v types.Vehicle) (string, bool) {
	tmpl, ok := t[NormalizeMake(v.Make)]
	if !ok || tmpl == nil {
		return "", false
	}
	return tmpl(v.Year, v.Model), true
}

// NormalizeMake lower-cases the make and resolves common aliases
func NormalizeMake(name string) string {
	m := strings.Join(strings.Fields(strings.ToLower(name)), " ")
	if alias, ok := makeAliases[m]; ok {
		return alias
	}
	return m
}

func slug(s, sep string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(s), sep), sep)
}
