package document

import "time"

// Mutator edits a document in place. Mutators are only ever applied to
// a fresh clone by the session controller, so from the outside every
// update is copy-on-write: the previous document value is never touched.
type Mutator func(*Document)

// UpsertPhoto inserts or replaces a photo record by filename. This is
// how a synthesized (not yet persisted) record becomes real on first
// edit.
func UpsertPhoto(rec PhotoRecord) Mutator {
	return func(d *Document) {
		for i := range d.Photos {
			if d.Photos[i].Filename == rec.Filename {
				d.Photos[i] = rec
				return
			}
		}

		d.Photos = append(d.Photos, rec)
	}
}

// RemovePhoto drops the photo record for a filename. Applied in the
// same update as the physical file delete so no orphan record survives.
func RemovePhoto(filename string) Mutator {
	return func(d *Document) {
		kept := d.Photos[:0]

		for _, p := range d.Photos {
			if p.Filename != filename {
				kept = append(kept, p)
			}
		}

		d.Photos = kept
	}
}

// UpsertSvg inserts or replaces an svg record by filename. Project and
// slot changes must go through AssignSvg instead; this mutator keeps
// the existing assignment when replacing a record whose Project/Slot
// fields were left empty by the caller.
func UpsertSvg(rec SvgRecord) Mutator {
	return func(d *Document) {
		if rec.Slot == "" {
			rec.Slot = SlotCard
		}

		for i := range d.Svgs {
			if d.Svgs[i].Filename == rec.Filename {
				if rec.Project == "" {
					rec.Project = d.Svgs[i].Project
					rec.Slot = d.Svgs[i].Slot
				}

				d.Svgs[i] = rec

				return
			}
		}

		d.Svgs = append(d.Svgs, rec)
	}
}

// RemoveSvg drops the svg record for a filename and clears any project
// slot pointer that still references it.
func RemoveSvg(filename string) Mutator {
	return func(d *Document) {
		kept := d.Svgs[:0]

		for _, s := range d.Svgs {
			if s.Filename != filename {
				kept = append(kept, s)
			}
		}

		d.Svgs = kept

		for i := range d.Projects {
			clearSlotIfHeld(&d.Projects[i], SlotCard, filename)
			clearSlotIfHeld(&d.Projects[i], SlotModal, filename)
		}
	}
}

// AssignSvg moves an svg into a project slot, updating both halves of
// the two-way link in one atomic document replacement: the svg record's
// project/slot fields and the project's CardSvg/ModalSvg pointer. The
// previously held slot pointer is cleared, and any other svg record
// claiming the target slot is detached, so the forward and reverse
// pointers can never diverge. An empty projectID unassigns the svg.
//
// rec supplies the record identity and display name for svgs that have
// no persisted record yet (first edit of a synthesized entry).
func AssignSvg(rec SvgRecord, projectID, slot string) Mutator {
	return func(d *Document) {
		if slot != SlotCard && slot != SlotModal {
			slot = SlotCard
		}

		current := rec
		if existing := d.Svg(rec.Filename); existing != nil {
			current = *existing

			if rec.DisplayName != "" {
				current.DisplayName = rec.DisplayName
			}
		}

		oldProject, oldSlot := current.Project, current.Slot

		current.Project = projectID
		current.Slot = slot

		replaced := false

		for i := range d.Svgs {
			if d.Svgs[i].Filename == current.Filename {
				d.Svgs[i] = current
				replaced = true

				break
			}
		}

		if !replaced {
			d.Svgs = append(d.Svgs, current)
		}

		// Release the slot this svg held before, unless it is the same
		// assignment being re-applied.
		if oldProject != "" && (oldProject != projectID || oldSlot != slot) {
			if p := d.Project(oldProject); p != nil {
				clearSlotIfHeld(p, oldSlot, current.Filename)
			}
		}

		if projectID == "" {
			return
		}

		// One svg per slot: detach any other record claiming the target.
		for i := range d.Svgs {
			s := &d.Svgs[i]
			if s.Filename != current.Filename && s.Project == projectID && s.Slot == slot {
				s.Project = ""
			}
		}

		if p := d.Project(projectID); p != nil {
			name := current.Filename

			if slot == SlotCard {
				p.CardSvg = &name
			} else {
				p.ModalSvg = &name
			}
		}
	}
}

func clearSlotIfHeld(p *ProjectRecord, slot, filename string) {
	if slot == SlotCard && p.CardSvg != nil && *p.CardSvg == filename {
		p.CardSvg = nil
	}

	if slot == SlotModal && p.ModalSvg != nil && *p.ModalSvg == filename {
		p.ModalSvg = nil
	}
}

// NewProject builds a project record with defaults, ready for AddProject.
// The caller supplies a freshly generated unique id.
func NewProject(id string, now time.Time) ProjectRecord {
	return ProjectRecord{
		ID:     id,
		Title:  "New Project",
		Year:   now.Format("2006"),
		CardBg: DefaultCardBg,
		Specs:  map[string]string{},
	}
}

// AddProject appends a project. A zero Order slots it after the
// existing projects.
func AddProject(p ProjectRecord) Mutator {
	return func(d *Document) {
		if p.Specs == nil {
			p.Specs = map[string]string{}
		}

		if p.Order == 0 {
			p.Order = len(d.Projects) + 1
		}

		d.Projects = append(d.Projects, p)
	}
}

// ReplaceProject replaces the project with the same id. Unknown ids are
// ignored — the record to replace must come from the current document.
func ReplaceProject(p ProjectRecord) Mutator {
	return func(d *Document) {
		for i := range d.Projects {
			if d.Projects[i].ID == p.ID {
				if p.Specs == nil {
					p.Specs = map[string]string{}
				}

				d.Projects[i] = p

				return
			}
		}
	}
}

// RemoveProject deletes a project and cascade-clears the project field
// of every svg record that pointed at it, so no svg is left referencing
// a dead id.
func RemoveProject(id string) Mutator {
	return func(d *Document) {
		kept := d.Projects[:0]

		for _, p := range d.Projects {
			if p.ID != id {
				kept = append(kept, p)
			}
		}

		d.Projects = kept

		for i := range d.Svgs {
			if d.Svgs[i].Project == id {
				d.Svgs[i].Project = ""
			}
		}
	}
}

// SetSite replaces the site text fields.
func SetSite(s Site) Mutator {
	return func(d *Document) {
		if s.ManifestoAccents == nil {
			s.ManifestoAccents = []string{}
		}

		d.Site = s
	}
}

// SetCV replaces the CV sections.
func SetCV(cv CV) Mutator {
	return func(d *Document) {
		d.CV = cv
		d.EnsureCollections()
	}
}
