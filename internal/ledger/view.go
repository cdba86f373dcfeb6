package ledger

import (
	"context"
	"fmt"

	"spikecurate/internal/services"
	"spikecurate/internal/sorting"
)

// CuratedView loads the base sorting of curation id and applies its merge
// groups, returning the effective unit set and the merges that produced it.
func (s *Store) CuratedView(ctx context.Context, id string) (*sorting.Sorting, []sorting.AppliedMerge, error) {
	c, rec, err := s.curationWithSorting(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	base, err := s.data.LoadSorting(ctx, rec.SortingPath)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrResource, "ledger", "curated view",
			fmt.Sprintf("load sorting for %s", c.ID), err)
	}
	view, applied, err := sorting.ApplyMerges(base, c.MergeGroups)
	if err != nil {
		return nil, nil, err
	}
	return view, applied, nil
}

// Recording loads the recording underlying curation id.
func (s *Store) Recording(ctx context.Context, id string) (*sorting.Recording, error) {
	c, rec, err := s.curationWithSorting(ctx, id)
	if err != nil {
		return nil, err
	}
	recording, err := s.data.LoadRecording(ctx, rec.RecordingPath)
	if err != nil {
		return nil, services.Wrap(services.ErrResource, "ledger", "recording",
			fmt.Sprintf("load recording for %s", c.ID), err)
	}
	return recording, nil
}

func (s *Store) curationWithSorting(ctx context.Context, id string) (*Curation, *SortingRecord, error) {
	c, err := s.MustGet(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rec, err := s.GetSorting(ctx, c.SortingRef)
	if err != nil {
		return nil, nil, err
	}
	if rec == nil {
		return nil, nil, services.Wrap(services.ErrPrecondition, "ledger", "resolve sorting",
			fmt.Sprintf("curation %s references missing sorting %q", c.ID, c.SortingRef), nil)
	}
	return c, rec, nil
}
