package store

import "enrollgate/internal/pending/models"

// Newer reports whether a supersedes b: the most recently updated wins, then
// the most recently created. Insertion order never decides.
func Newer(a, b *models.Registration) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// Dedupe keeps one registration per national ID using Newer. Kept records
// appear in the order their key was first seen; on a full tie the earlier
// record is kept.
func Dedupe(records []*models.Registration) (kept, discarded []*models.Registration) {
	index := make(map[models.NationalID]int, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		i, seen := index[r.NationalID]
		if !seen {
			index[r.NationalID] = len(kept)
			kept = append(kept, r)
			continue
		}
		if Newer(r, kept[i]) {
			discarded = append(discarded, kept[i])
			kept[i] = r
		} else {
			discarded = append(discarded, r)
		}
	}
	return kept, discarded
}
