// Package reconcile merges physical file listings from the remote store
// with the metadata records carried in the document. The two can drift:
// files get uploaded before anyone edits their metadata, and records can
// outlive their files. The merge is pure so it can run on every listing
// request without side effects.
package reconcile

import (
	"path"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/larsvig/folio-admin/internal/document"
	"github.com/larsvig/folio-admin/internal/github"
)

// MergedPhoto is a photo file paired with its metadata record. When no
// record exists yet, Synthesized is true and the record holds derived
// defaults that only become persistent on first edit.
type MergedPhoto struct {
	document.PhotoRecord

	SHA         string `json:"sha"`
	Size        int64  `json:"size"`
	Synthesized bool   `json:"synthesized"`
}

// MergedSVG is the svg counterpart of MergedPhoto.
type MergedSVG struct {
	document.SvgRecord

	SHA         string `json:"sha"`
	Size        int64  `json:"size"`
	Synthesized bool   `json:"synthesized"`
}

// Photos merges the folder listing with the photo records. Records
// without a backing file are dropped, files without a record get
// synthesized defaults, and the result is sorted by display order with
// stable ties in listing order. now supplies the default year.
func Photos(files []github.RemoteFile, records []document.PhotoRecord, now time.Time) []MergedPhoto {
	byName := make(map[string]document.PhotoRecord, len(records))
	for _, r := range records {
		byName[norm.NFC.String(r.Filename)] = r
	}

	merged := make([]MergedPhoto, 0, len(files))

	for _, f := range files {
		rec, found := byName[norm.NFC.String(f.Name)]
		if !found {
			rec = document.PhotoRecord{
				Filename:    f.Name,
				DisplayName: DisplayName(f.Name),
				Year:        now.Format("2006"),
				Order:       document.DefaultOrder,
			}
		}

		merged = append(merged, MergedPhoto{
			PhotoRecord: rec,
			SHA:         f.SHA,
			Size:        f.Size,
			Synthesized: !found,
		})
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Order < merged[j].Order
	})

	return merged
}

// SVGs merges the folder listing with the svg records. Unrecorded files
// synthesize as unassigned card-slot entries.
func SVGs(files []github.RemoteFile, records []document.SvgRecord) []MergedSVG {
	byName := make(map[string]document.SvgRecord, len(records))
	for _, r := range records {
		byName[norm.NFC.String(r.Filename)] = r
	}

	merged := make([]MergedSVG, 0, len(files))

	for _, f := range files {
		rec, found := byName[norm.NFC.String(f.Name)]
		if !found {
			rec = document.SvgRecord{
				Filename:    f.Name,
				DisplayName: DisplayName(f.Name),
				Slot:        document.SlotCard,
			}
		}

		merged = append(merged, MergedSVG{
			SvgRecord:   rec,
			SHA:         f.SHA,
			Size:        f.Size,
			Synthesized: !found,
		})
	}

	return merged
}

// DisplayName derives a human-readable name from a filename: extension
// stripped, hyphens and underscores become spaces.
func DisplayName(filename string) string {
	name := strings.TrimSuffix(filename, path.Ext(filename))
	name = strings.ReplaceAll(name, "-", " ")
	name = strings.ReplaceAll(name, "_", " ")

	return strings.TrimSpace(name)
}
