package document

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrParse marks a persisted document that could not be interpreted.
var ErrParse = errors.New("malformed document")

// Normalize builds a structurally valid Document from persisted bytes.
// The remote document is treated as adversarial input: it was written
// by whatever editor last had the token, so nothing about its shape is
// trusted. Missing sections become empty collections, scalar fields are
// coerced across string/number representations, and records without a
// unique key are dropped. Only byte sequences that are not a JSON
// object at all are rejected.
func Normalize(raw []byte) (*Document, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrParse)
	}

	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: root is not an object", ErrParse)
	}

	doc := &Document{}

	site := root.Get("site")
	doc.Site = Site{
		Name:             site.Get("name").String(),
		Tagline:          site.Get("tagline").String(),
		School:           site.Get("school").String(),
		Email:            site.Get("email").String(),
		CVFile:           site.Get("cvFile").String(),
		Manifesto:        site.Get("manifesto").String(),
		ManifestoAccents: stringList(site.Get("manifestoAccents")),
	}

	seenPhotos := make(map[string]struct{})

	for _, p := range root.Get("photos").Array() {
		filename := p.Get("filename").String()
		if filename == "" {
			continue
		}

		if _, dup := seenPhotos[filename]; dup {
			continue
		}

		seenPhotos[filename] = struct{}{}

		doc.Photos = append(doc.Photos, PhotoRecord{
			Filename:    filename,
			DisplayName: p.Get("displayName").String(),
			Year:        p.Get("year").String(),
			Category:    p.Get("category").String(),
			Project:     p.Get("project").String(),
			Caption:     p.Get("caption").String(),
			Order:       intField(p.Get("order"), DefaultOrder),
		})
	}

	seenSvgs := make(map[string]struct{})

	for _, s := range root.Get("svgs").Array() {
		filename := s.Get("filename").String()
		if filename == "" {
			continue
		}

		if _, dup := seenSvgs[filename]; dup {
			continue
		}

		seenSvgs[filename] = struct{}{}

		slot := s.Get("slot").String()
		if slot != SlotCard && slot != SlotModal {
			slot = SlotCard
		}

		doc.Svgs = append(doc.Svgs, SvgRecord{
			Filename:    filename,
			DisplayName: s.Get("displayName").String(),
			Project:     s.Get("project").String(),
			Slot:        slot,
		})
	}

	seenProjects := make(map[string]struct{})

	for _, p := range root.Get("projects").Array() {
		id := p.Get("id").String()
		if id == "" {
			continue
		}

		if _, dup := seenProjects[id]; dup {
			continue
		}

		seenProjects[id] = struct{}{}

		specs := map[string]string{}
		p.Get("specs").ForEach(func(k, v gjson.Result) bool {
			if k.String() != "" {
				specs[k.String()] = v.String()
			}

			return true
		})

		doc.Projects = append(doc.Projects, ProjectRecord{
			ID:          id,
			Title:       p.Get("title").String(),
			Year:        p.Get("year").String(),
			Material:    p.Get("material").String(),
			Blurb:       p.Get("blurb").String(),
			Description: p.Get("description").String(),
			CardSvg:     fileRef(p.Get("cardSvg")),
			ModalSvg:    fileRef(p.Get("modalSvg")),
			CardBg:      p.Get("cardBg").String(),
			Specs:       specs,
			Order:       intField(p.Get("order"), 0),
		})
	}

	cv := root.Get("cv")
	doc.CV = CV{
		Education:   entryList(cv.Get("education")),
		Exhibitions: entryList(cv.Get("exhibitions")),
		Experience:  entryList(cv.Get("experience")),
		Tools:       stringList(cv.Get("tools")),
	}

	doc.EnsureCollections()

	return doc, nil
}

// intField coerces an order-style field that may be persisted as a
// number or a numeric string. Missing, empty, or unparseable values
// fall back to def.
func intField(v gjson.Result, def int) int {
	switch v.Type {
	case gjson.Number:
		return int(v.Int())
	case gjson.String:
		n, err := strconv.Atoi(strings.TrimSpace(v.Str))
		if err != nil {
			return def
		}

		return n
	default:
		return def
	}
}

// fileRef reads a nullable filename reference: null, missing, and ""
// all mean "no file assigned".
func fileRef(v gjson.Result) *string {
	s := v.String()
	if s == "" {
		return nil
	}

	return &s
}

func stringList(v gjson.Result) []string {
	items := v.Array()
	out := make([]string, 0, len(items))

	for _, it := range items {
		if s := it.String(); s != "" {
			out = append(out, s)
		}
	}

	return out
}

func entryList(v gjson.Result) []CVEntry {
	items := v.Array()
	out := make([]CVEntry, 0, len(items))

	for _, it := range items {
		out = append(out, CVEntry{
			Year:        it.Get("year").String(),
			Title:       it.Get("title").String(),
			Institution: it.Get("institution").String(),
		})
	}

	return out
}
