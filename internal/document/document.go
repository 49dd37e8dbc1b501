// Package document defines the single persisted content document for
// the portfolio site and the repository that loads and saves it through
// the remote store. The document is committed as pretty-printed JSON so
// every save produces a readable diff in version control.
package document

import "encoding/json"

// DefaultOrder sorts unordered entries last in gallery views.
const DefaultOrder = 999

// SVG placement slots on a project.
const (
	SlotCard  = "card"
	SlotModal = "modal"
)

// DefaultCardBg is the card background color for new projects.
const DefaultCardBg = "#D6C9AF"

// Document is the root aggregate: all site content and metadata in one
// persisted unit. Collection fields are never nil — absent sections
// normalize to empty.
type Document struct {
	Site     Site            `json:"site"`
	Photos   []PhotoRecord   `json:"photos"`
	Svgs     []SvgRecord     `json:"svgs"`
	Projects []ProjectRecord `json:"projects"`
	CV       CV              `json:"cv"`
}

// Site holds the global text fields shown across the portfolio.
type Site struct {
	Name             string   `json:"name"`
	Tagline          string   `json:"tagline"`
	School           string   `json:"school"`
	Email            string   `json:"email"`
	CVFile           string   `json:"cvFile"`
	Manifesto        string   `json:"manifesto"`
	ManifestoAccents []string `json:"manifestoAccents"`
}

// PhotoRecord is display metadata for one photo file, keyed by filename.
// Records exist only for files that have been edited or saved; files
// without a record get synthesized defaults at reconcile time.
type PhotoRecord struct {
	Filename    string `json:"filename"`
	DisplayName string `json:"displayName"`
	Year        string `json:"year"`
	Category    string `json:"category"`
	Project     string `json:"project"`
	Caption     string `json:"caption"`
	Order       int    `json:"order"`
}

// SvgRecord is metadata for one SVG drawing, keyed by filename. Project
// and Slot form the forward half of a two-way link: the referenced
// project's CardSvg/ModalSvg field must point back at this filename.
// Only the AssignSvg mutator may touch both halves.
type SvgRecord struct {
	Filename    string `json:"filename"`
	DisplayName string `json:"displayName"`
	Project     string `json:"project"`
	Slot        string `json:"slot"`
}

// ProjectRecord is one portfolio project. ID is a stable identifier
// independent of the title. CardSvg/ModalSvg are nil when no drawing is
// assigned to the slot.
type ProjectRecord struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Year        string            `json:"year"`
	Material    string            `json:"material"`
	Blurb       string            `json:"blurb"`
	Description string            `json:"description"`
	CardSvg     *string           `json:"cardSvg"`
	ModalSvg    *string           `json:"modalSvg"`
	CardBg      string            `json:"cardBg"`
	Specs       map[string]string `json:"specs"`
	Order       int               `json:"order"`
}

// CVEntry is one dated line in a CV section.
type CVEntry struct {
	Year        string `json:"year"`
	Title       string `json:"title"`
	Institution string `json:"institution"`
}

// CV holds the ordered CV sections plus the tools list.
type CV struct {
	Education   []CVEntry `json:"education"`
	Exhibitions []CVEntry `json:"exhibitions"`
	Experience  []CVEntry `json:"experience"`
	Tools       []string  `json:"tools"`
}

// Fallback returns the minimal valid document: empty site text and all
// collections present and empty. Load failures of any kind collapse to
// this so an editing session always starts from a usable value.
func Fallback() *Document {
	d := &Document{}
	d.EnsureCollections()

	return d
}

// EnsureCollections replaces nil collection fields with empty ones so
// the marshalled document never contains null where the site expects an
// array or object.
func (d *Document) EnsureCollections() {
	if d.Site.ManifestoAccents == nil {
		d.Site.ManifestoAccents = []string{}
	}

	if d.Photos == nil {
		d.Photos = []PhotoRecord{}
	}

	if d.Svgs == nil {
		d.Svgs = []SvgRecord{}
	}

	if d.Projects == nil {
		d.Projects = []ProjectRecord{}
	}

	for i := range d.Projects {
		if d.Projects[i].Specs == nil {
			d.Projects[i].Specs = map[string]string{}
		}
	}

	if d.CV.Education == nil {
		d.CV.Education = []CVEntry{}
	}

	if d.CV.Exhibitions == nil {
		d.CV.Exhibitions = []CVEntry{}
	}

	if d.CV.Experience == nil {
		d.CV.Experience = []CVEntry{}
	}

	if d.CV.Tools == nil {
		d.CV.Tools = []string{}
	}
}

// Clone returns a deep copy. Mutators run against a clone so the
// previous document value stays untouched and consumers can rely on
// pointer identity for change detection.
func (d *Document) Clone() *Document {
	c := &Document{
		Site:     d.Site,
		Photos:   append([]PhotoRecord(nil), d.Photos...),
		Svgs:     append([]SvgRecord(nil), d.Svgs...),
		Projects: append([]ProjectRecord(nil), d.Projects...),
		CV: CV{
			Education:   append([]CVEntry(nil), d.CV.Education...),
			Exhibitions: append([]CVEntry(nil), d.CV.Exhibitions...),
			Experience:  append([]CVEntry(nil), d.CV.Experience...),
			Tools:       append([]string(nil), d.CV.Tools...),
		},
	}

	c.Site.ManifestoAccents = append([]string(nil), d.Site.ManifestoAccents...)

	for i := range c.Projects {
		p := &c.Projects[i]

		if p.CardSvg != nil {
			v := *p.CardSvg
			p.CardSvg = &v
		}

		if p.ModalSvg != nil {
			v := *p.ModalSvg
			p.ModalSvg = &v
		}

		specs := make(map[string]string, len(p.Specs))
		for k, v := range p.Specs {
			specs[k] = v
		}

		p.Specs = specs
	}

	c.EnsureCollections()

	return c
}

// Marshal serializes the document with two-space indentation and a
// trailing newline, the stable formatting committed to the repository.
func (d *Document) Marshal() ([]byte, error) {
	c := d.Clone()

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, err
	}

	return append(data, '\n'), nil
}

// Project returns the project with the given id, or nil.
func (d *Document) Project(id string) *ProjectRecord {
	for i := range d.Projects {
		if d.Projects[i].ID == id {
			return &d.Projects[i]
		}
	}

	return nil
}

// Photo returns the photo record with the given filename, or nil.
func (d *Document) Photo(filename string) *PhotoRecord {
	for i := range d.Photos {
		if d.Photos[i].Filename == filename {
			return &d.Photos[i]
		}
	}

	return nil
}

// Svg returns the svg record with the given filename, or nil.
func (d *Document) Svg(filename string) *SvgRecord {
	for i := range d.Svgs {
		if d.Svgs[i].Filename == filename {
			return &d.Svgs[i]
		}
	}

	return nil
}
