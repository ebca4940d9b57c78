// Package partner reads the partner profile embedded in partner pages.
//
// A partner page is a Markdown document carrying a YAML block inside
// <script id="partner-info" type="application/x-yaml">...</script>. The
// block is parsed into an Info and removed from the page before rendering.
package partner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/vk/pagegrid/internal/ctxlog"
	"github.com/vk/pagegrid/internal/fsutil"
	"gopkg.in/yaml.v3"
)

const (
	DefaultLogo        = "https://archilogic-com.github.io/ui-style-guide/certified-partner/archilogic-partner-badge-pyramid-gradient.svg"
	DefaultLogoBGColor = "#ddd"
	DefaultLogoSize    = 84.0

	// ApplyPage is the partner application form. It lives in the partner
	// directory but is not a profile.
	ApplyPage = "apply.md"
)

var (
	infoRegex = regexp.MustCompile(`(?s)<script id="partner-info" type="application/x-yaml">(.*?)</script>`)
	// Matches "KEY:value" where the space after the colon is missing.
	missingSpaceRegex = regexp.MustCompile(`(?mi)^([\sa-z0-9_-]+):([a-z0-9_-])`)
	// Matches the numeric prefix of a scalar such as "12 EUR" or "100px".
	floatPrefixRegex = regexp.MustCompile(`^[+-]?(?:Infinity|(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?)`)
)

// Sample is one showcase entry of a partner.
type Sample struct {
	Title string `yaml:"TITLE" json:"title"`
	URL   string `yaml:"URL" json:"url"`
	Image string `yaml:"IMAGE" json:"image"`
	// Price is read from PRICE by UnmarshalYAML.
	Price *float64 `yaml:"-" json:"price,omitempty"`

	// Fields keeps every other key of the entry for use in templates.
	Fields map[string]any `yaml:",inline" json:"fields,omitempty"`
}

// Get returns a free-form field of the sample.
func (s *Sample) Get(key string) any {
	return s.Fields[key]
}

func (s *Sample) UnmarshalYAML(node *yaml.Node) error {
	type plain Sample
	if err := node.Decode((*plain)(s)); err != nil {
		return err
	}
	s.Price = takeFloat(s.Fields, "PRICE")
	if len(s.Fields) == 0 {
		s.Fields = nil
	}
	return nil
}

// Info is the parsed partner profile.
type Info struct {
	Name        string   `yaml:"NAME" json:"name"`
	Logo        string   `yaml:"LOGO" json:"logo"`
	LogoBGColor string   `yaml:"LOGO_BG_COLOR" json:"logoBgColor"`
	LogoSize    Size     `yaml:"LOGO_SIZE" json:"logoSize"`
	Website     string   `yaml:"WEBSITE" json:"website"`
	LocationLat *float64 `yaml:"-" json:"locationLat,omitempty"`
	LocationLng *float64 `yaml:"-" json:"locationLng,omitempty"`
	Samples     []Sample `yaml:"SAMPLES" json:"samples"`

	// Filename is the page path relative to the source root.
	Filename string `yaml:"-" json:"filename"`
	// URL is the path of the rendered profile page.
	URL string `yaml:"-" json:"url"`

	// Fields keeps every other key of the block for use in templates.
	Fields map[string]any `yaml:",inline" json:"fields,omitempty"`
}

// Get returns a free-form field of the profile.
func (i *Info) Get(key string) any {
	return i.Fields[key]
}

func (i *Info) UnmarshalYAML(node *yaml.Node) error {
	type plain Info
	if err := node.Decode((*plain)(i)); err != nil {
		return err
	}
	i.LocationLat = takeFloat(i.Fields, "LOCATION_LAT")
	i.LocationLng = takeFloat(i.Fields, "LOCATION_LNG")
	if len(i.Fields) == 0 {
		i.Fields = nil
	}
	return nil
}

// HasLocation reports whether both coordinates are present.
func (i *Info) HasLocation() bool {
	return i.LocationLat != nil && i.LocationLng != nil
}

// Parse extracts the partner profile from a page source. rel is used for
// error messages and stored as Filename.
func Parse(ctx context.Context, src []byte, rel string) (*Info, error) {
	m := infoRegex.FindSubmatch(src)
	if m == nil {
		return nil, fmt.Errorf("Partner page %s has malformed or missing <script id=\"partner-info\" type=\"application/x-yaml\">...</script> tag", rel)
	}
	block := m[1]

	if missingSpaceRegex.Match(block) {
		ctxlog.FromContext(ctx).Warn("Partner info has keys without a space after the colon; fixing.", "page", rel)
		block = missingSpaceRegex.ReplaceAll(block, []byte("$1: $2"))
	}

	var info Info
	if err := yaml.Unmarshal(block, &info); err != nil {
		return nil, fmt.Errorf("\"partner-info\" of page %s can not be parsed and is probably malformed: %w", rel, err)
	}

	info.Filename = rel
	info.URL = "/" + fsutil.ReplaceExt(rel, ".html")
	if info.LogoSize == 0 {
		info.LogoSize = DefaultLogoSize
	}
	if info.Logo == "" {
		info.Logo = DefaultLogo
	}
	if info.LogoBGColor == "" {
		info.LogoBGColor = DefaultLogoBGColor
	}
	return &info, nil
}

// Size is a logo size in pixels. Values without a numeric prefix decode as
// the default size instead of failing the whole profile.
type Size float64

func (s *Size) UnmarshalYAML(node *yaml.Node) error {
	*s = DefaultLogoSize
	if node.Kind != yaml.ScalarNode {
		return nil
	}
	if f, ok := ParseFloat(node.Value); ok && f != 0 {
		*s = Size(f)
	}
	return nil
}

// ParseFloat reads the leading number of s, ignoring leading whitespace and
// any trailing text: "12 EUR" is 12 and "100px" is 100. It reports false
// when s does not start with a number.
func ParseFloat(s string) (float64, bool) {
	m := floatPrefixRegex.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// takeFloat removes key from fields and parses its value. Missing keys,
// empty values, numeric zero and values without a numeric prefix are absent.
func takeFloat(fields map[string]any, key string) *float64 {
	v, ok := fields[key]
	if !ok {
		return nil
	}
	delete(fields, key)

	var raw string
	switch v := v.(type) {
	case string:
		raw = v
	case int:
		if v == 0 {
			return nil
		}
		raw = strconv.Itoa(v)
	case float64:
		if v == 0 {
			return nil
		}
		return &v
	default:
		raw = fmt.Sprint(v)
	}
	f, ok := ParseFloat(raw)
	if !ok {
		return nil
	}
	return &f
}

// Strip removes the first partner-info block from a page source, the one
// Parse reads.
func Strip(src []byte) []byte {
	loc := infoRegex.FindIndex(src)
	if loc == nil {
		return src
	}
	out := make([]byte, 0, len(src)-(loc[1]-loc[0]))
	out = append(out, src[:loc[0]]...)
	return append(out, src[loc[1]:]...)
}

// LoadAll parses every partner page in dir, skipping the application page.
// Filenames are relative to srcRoot and the result is sorted by them.
func LoadAll(ctx context.Context, dir, srcRoot string) ([]*Info, error) {
	logger := ctxlog.FromContext(ctx)
	files, err := fsutil.Selection{
		Include: []string{"*.md"},
		Exclude: []string{ApplyPage},
	}.Find(dir)
	if err != nil {
		return nil, err
	}

	infos := make([]*Info, 0, len(files))
	for _, name := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		rel, err := filepath.Rel(srcRoot, path)
		if err != nil {
			return nil, err
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read partner page: %w", err)
		}
		info, err := Parse(ctx, src, filepath.ToSlash(rel))
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Filename < infos[j].Filename })
	logger.Debug("Loaded partner profiles.", "dir", dir, "count", len(infos))
	return infos, nil
}
