package store

import (
	"errors"
	"fmt"
	"slices"

	"arc-go/internal/arc"
)

// CheckIntegrity verifies that both tag spaces agree with the tag lists
// of the entities they index, and that no collection references a missing
// document. Every disagreement found is reported, joined, as
// arc.ErrIntegrity. It does not lock; run it against a quiet archive.
func (a *Archive) CheckIntegrity() error {
	hashes, err := a.Documents.List()
	if err != nil {
		return err
	}
	cols, err := a.Collections.List()
	if err != nil {
		return err
	}

	want := map[arc.Space]map[string][]string{
		arc.SpaceDocuments:   {},
		arc.SpaceCollections: {},
	}
	present := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		doc, err := a.Documents.Get(h)
		if err != nil {
			return fmt.Errorf("checking document %s: %w", h, err)
		}
		present[h] = true
		for _, tag := range doc.Meta.Tags {
			want[arc.SpaceDocuments][tag] = append(want[arc.SpaceDocuments][tag], h)
		}
	}
	for _, col := range cols {
		for _, tag := range col.Tags {
			want[arc.SpaceCollections][tag] = append(want[arc.SpaceCollections][tag], col.ID)
		}
	}

	var problems []error
	for _, col := range cols {
		for _, h := range col.Documents {
			if !present[h] {
				problems = append(problems, arc.Integrity("collection %s references missing document %s", col.ID, h))
			}
		}
	}

	for _, space := range arc.Spaces {
		indexed, err := a.Tags.List(space)
		if err != nil {
			return err
		}
		for _, tag := range indexed {
			if _, ok := want[space][tag]; !ok {
				want[space][tag] = nil
			}
		}

		for tag, ids := range want[space] {
			got, err := a.Tags.Referents(space, tag)
			if err != nil {
				return err
			}
			for _, id := range got {
				if !slices.Contains(ids, id) {
					problems = append(problems, arc.Integrity("%s tag %s indexes %s, which does not carry it", space, tag, id))
				}
			}
			for _, id := range ids {
				if !slices.Contains(got, id) {
					problems = append(problems, arc.Integrity("%s tag %s is missing %s", space, tag, id))
				}
			}
		}
	}

	return errors.Join(problems...)
}
