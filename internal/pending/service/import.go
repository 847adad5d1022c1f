package service

import (
	"context"
	"errors"

	"enrollgate/internal/completeness"
	"enrollgate/internal/pending/models"
	"enrollgate/internal/pending/store"
	dErrors "enrollgate/pkg/domain-errors"
	"enrollgate/pkg/platform/sentinel"
	"enrollgate/pkg/requestcontext"
)

// ImportResult counts the outcome of a bulk import.
type ImportResult struct {
	Imported  int `json:"imported"`
	Discarded int `json:"discarded"`
}

// Import loads a batch of registrations, possibly with duplicates. Duplicates
// inside the batch and against stored records are resolved by store.Newer:
// the most recently updated record wins. The state of every record is derived
// from its documents; the state column of the batch is not trusted.
// A newer record merges into a live stored one the way SubmitOrUpdate does,
// and processed records are never touched.
func (s *Service) Import(ctx context.Context, req *models.ImportRequest) (res *ImportResult, err error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, "pending.import", "")
	defer func() { endSpan(span, err) }()

	now := requestcontext.Now(ctx)
	kept, discarded := store.Dedupe(req.Registrations())
	res = &ImportResult{Discarded: len(discarded)}
	for _, reg := range kept {
		claimed := reg.State
		reg.State = s.evaluatedState(reg)
		if claimed.IsTerminal() && !reg.State.IsTerminal() {
			s.logger.WarnContext(ctx, "imported record claims processed state with incomplete documentation",
				"national_id_suffix", reg.NationalID.Suffix(),
				"state", reg.State,
			)
		}
		err := s.withKey(ctx, "import", reg.NationalID, func(ctx context.Context) error {
			existing, err := s.store.FindByNationalID(ctx, reg.NationalID)
			switch {
			case errors.Is(err, sentinel.ErrNotFound):
			case err != nil:
				return s.translate(ctx, "import", err)
			case existing.State.IsTerminal(), !store.Newer(reg, existing):
				res.Discarded++
				return nil
			case !existing.IsExpired(now):
				reg = mergeImported(existing, reg)
				reg.State = existing.State.Advance(s.evaluatedState(reg))
			}
			if err := s.store.Save(ctx, reg); err != nil {
				return s.translate(ctx, "import", err)
			}
			res.Imported++
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	s.logger.InfoContext(ctx, "pending registrations imported",
		"imported", res.Imported,
		"discarded", res.Discarded,
	)
	return res, nil
}

// evaluatedState is the state reg's documents earn against its requirements.
// Undetermined requirements never earn more than SIN_DOCUMENTACION.
func (s *Service) evaluatedState(reg *models.Registration) models.State {
	return models.StateFor(completeness.Evaluate(reg.Documents, s.requirementsFor(reg.Personal)).Status)
}

// mergeImported overlays a newer imported record on a live stored one.
// Documents and personal data accumulate, timestamps follow the import.
func mergeImported(existing, incoming *models.Registration) *models.Registration {
	merged := existing.Clone()
	merged.Personal = merged.Personal.Merge(incoming.Personal)
	merged.MergeDocuments(incoming.Documents)
	merged.UpdatedAt = incoming.UpdatedAt
	merged.ExpiresAt = incoming.ExpiresAt
	return merged
}
