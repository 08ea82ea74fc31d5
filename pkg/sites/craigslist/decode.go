package craigslist

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ajitpratap0/thor/pkg/errors"
	"github.com/ajitpratap0/thor/pkg/json"
	"github.com/ajitpratap0/thor/pkg/models"
)

// ImageURL rewrites a "<n>:<image id>" reference to its CDN URL.
func ImageURL(ref string) string {
	if i := strings.Index(ref, ":"); i >= 0 {
		ref = ref[i+1:]
	}
	return "https://images.craigslist.org/" + ref + "_1200x900.jpg"
}

type category struct {
	code        string
	description string
}

var categories = map[int64]category{
	145: {code: "cto", description: "cars & trucks - by owner"},
	146: {code: "ctd", description: "cars & trucks - by dealer"},
}

// Positional element tags.
const (
	tagImages = 4
	tagSlug   = 6
	tagMiles  = 9
	tagPrice  = 10
)

// element is one optional trailing element of a posting.
type element interface {
	apply(p *posting)
}

type slugTag struct{ slug string }

type priceTag struct{ formatted interface{} }

type imagesTag struct{ refs []string }

type milesTag struct{ miles interface{} }

type unknownTag struct{}

func (e slugTag) apply(p *posting) { p.slug = e.slug }

func (e priceTag) apply(p *posting) { p.priceFormatted = e.formatted }

func (e milesTag) apply(p *posting) { p.miles = e.miles }

func (unknownTag) apply(*posting) {}

func (e imagesTag) apply(p *posting) {
	p.images = make([]string, len(e.refs))
	for i, ref := range e.refs {
		p.images[i] = ImageURL(ref)
	}
}

// classify reads a tagged list such as [6, "slug"] into its element.
func classify(v interface{}) element {
	list, ok := v.([]interface{})
	if !ok || len(list) == 0 {
		return unknownTag{}
	}
	tag, ok := models.Int64(list[0])
	if !ok {
		return unknownTag{}
	}

	switch tag {
	case tagSlug:
		if len(list) > 1 {
			return slugTag{slug: models.Key(list[1])}
		}
	case tagPrice:
		if len(list) > 1 {
			return priceTag{formatted: list[1]}
		}
	case tagMiles:
		if len(list) > 1 {
			return milesTag{miles: number(list[1])}
		}
	case tagImages:
		refs := make([]string, 0, len(list)-1)
		for _, ref := range list[1:] {
			refs = append(refs, models.Key(ref))
		}
		return imagesTag{refs: refs}
	}
	return unknownTag{}
}

// number converts integral JSON numbers to int64 and leaves anything else
// as decoded.
func number(v interface{}) interface{} {
	if n, ok := models.Int64(v); ok {
		return n
	}
	return v
}

type posting struct {
	id             int64
	postedDate     int64
	category       int64
	price          int64
	areaName       string
	hostname       string
	subArea        interface{}
	description    string
	lat, long      string
	slug           string
	priceFormatted interface{}
	miles          interface{}
	images         []string
	title          string

	// linkable is false when the location has neither 2 nor 3 parts
	linkable bool
}

func (p *posting) link() string {
	if !p.linkable {
		return ""
	}
	cat := categories[p.category].code
	id := strconv.FormatInt(p.id, 10)
	if sub, ok := p.subArea.(string); ok {
		return "https://" + p.hostname + ".craigslist.org/" + sub + "/" + cat + "/d/" + p.slug + "/" + id + ".html"
	}
	return "https://" + p.hostname + ".craigslist.org/" + cat + "/d/" + p.slug + "/" + id + ".html"
}

func (p *posting) record() models.Record {
	cat := categories[p.category]
	images := p.images
	if images == nil {
		images = []string{}
	}
	return models.Record{
		"id":                  p.id,
		"PostingId":           p.id,
		"Title":               p.title,
		"PostingName":         p.slug,
		"PostedDate":          p.postedDate,
		"AreaName":            p.areaName,
		"SubAreaName":         p.subArea,
		"locationDescription": p.description,
		"LocationLat":         p.lat,
		"LocationLong":        p.long,
		"CategoryId":          p.category,
		"CategoryCode":        cat.code,
		"CategoryDescription": cat.description,
		"Miles":               p.miles,
		"Price":               p.price,
		"PriceFormatted":      p.priceFormatted,
		"Images":              images,
		"Link":                p.link(),
	}
}

// batch is the lookup context shared by every item of a search page.
type batch struct {
	minPostingID  int64
	minPostedDate int64
	locations     []interface{}
	descriptions  []interface{}
	areas         map[string]interface{}
	items         []interface{}
}

func keyError(path string) error {
	return errors.New(errors.ErrorTypeKey, "missing "+path)
}

func readBatch(doc map[string]interface{}) (*batch, error) {
	b := &batch{}

	ints := []struct {
		path string
		dst  *int64
	}{
		{"data.decode.minPostingId", &b.minPostingID},
		{"data.decode.minPostedDate", &b.minPostedDate},
	}
	for _, f := range ints {
		v, ok := models.Path(doc, f.path)
		if !ok {
			return nil, keyError(f.path)
		}
		n, ok := models.Int64(v)
		if !ok {
			return nil, keyError(f.path)
		}
		*f.dst = n
	}

	lists := []struct {
		path string
		dst  *[]interface{}
	}{
		{"data.decode.locations", &b.locations},
		{"data.decode.locationDescriptions", &b.descriptions},
		{"data.items", &b.items},
	}
	for _, f := range lists {
		v, ok := models.Path(doc, f.path)
		if !ok {
			return nil, keyError(f.path)
		}
		list, ok := v.([]interface{})
		if !ok {
			return nil, keyError(f.path)
		}
		*f.dst = list
	}

	v, ok := models.Path(doc, "data.areas")
	if !ok {
		return nil, keyError("data.areas")
	}
	if b.areas, ok = v.(map[string]interface{}); !ok {
		return nil, keyError("data.areas")
	}
	return b, nil
}

func (b *batch) index(list []interface{}, s string) (interface{}, bool) {
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 || i >= len(list) {
		return nil, false
	}
	return list[i], true
}

// decodeItem decodes one positional item.
func (b *batch) decodeItem(raw interface{}) (*posting, error) {
	item, ok := raw.([]interface{})
	if !ok || len(item) < 5 {
		return nil, errors.New(errors.ErrorTypeKey, "posting is not a positional list")
	}

	p := &posting{}
	fixed := []struct {
		pos int
		dst *int64
	}{{0, &p.id}, {1, &p.postedDate}, {2, &p.category}, {3, &p.price}}
	for _, f := range fixed {
		n, ok := models.Int64(item[f.pos])
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeKey, "position %d is not an integer", f.pos)
		}
		*f.dst = n
	}
	p.id += b.minPostingID
	p.postedDate += b.minPostedDate

	if _, ok := categories[p.category]; !ok {
		return nil, errors.Newf(errors.ErrorTypeKey, "posting %d: unknown category %d", p.id, p.category)
	}

	locString, ok := item[4].(string)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeKey, "posting %d: location is not a string", p.id)
	}
	parts := strings.Split(locString, "~")
	if len(parts) != 3 {
		return nil, errors.Newf(errors.ErrorTypeKey, "posting %d: malformed location %q", p.id, locString)
	}
	p.lat, p.long = parts[1], parts[2]

	ref := strings.SplitN(parts[0], ":", 2)
	if len(ref) != 2 {
		return nil, errors.Newf(errors.ErrorTypeKey, "posting %d: malformed location %q", p.id, locString)
	}

	locRaw, ok := b.index(b.locations, ref[0])
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeKey, "posting %d: location %s not found", p.id, ref[0])
	}
	loc, ok := locRaw.([]interface{})
	if !ok || len(loc) == 0 {
		return nil, errors.Newf(errors.ErrorTypeKey, "posting %d: location %s is malformed", p.id, ref[0])
	}

	area, ok := b.areas[models.Key(loc[0])].(map[string]interface{})
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeKey, "posting %d: area %s not found", p.id, models.Key(loc[0]))
	}
	name, ok := area["name"].(string)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeKey, "posting %d: area %s has no name", p.id, models.Key(loc[0]))
	}
	p.areaName = name

	descRaw, ok := b.index(b.descriptions, ref[1])
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeKey, "posting %d: location description %s not found", p.id, ref[1])
	}
	p.description = models.Key(descRaw)

	switch len(loc) {
	case 3:
		p.hostname = models.Key(loc[1])
		p.subArea = models.Key(loc[2])
		p.linkable = true
	case 2:
		p.hostname = models.Key(loc[1])
		p.linkable = true
	}

	for _, v := range item[5:] {
		classify(v).apply(p)
	}
	if title, ok := item[len(item)-1].(string); ok {
		p.title = title
	}

	return p, nil
}

// Decode decodes a search/full response. A missing batch-level key fails
// the page; an undecodable posting is skipped and returned as a problem.
func Decode(body []byte) ([]models.Record, []error, error) {
	var doc map[string]interface{}
	if err := json.DecodeNumber(body, &doc); err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeJSONDecode, "decode search page")
	}

	b, err := readBatch(doc)
	if err != nil {
		return nil, nil, err
	}

	records := make([]models.Record, 0, len(b.items))
	var problems []error
	for i, raw := range b.items {
		p, err := b.decodeItem(raw)
		if err != nil {
			problems = append(problems, errors.Wrap(err, errors.ErrorTypeKey, fmt.Sprintf("skipped item %d", i)))
			continue
		}
		records = append(records, p.record())
	}
	return records, problems, nil
}
