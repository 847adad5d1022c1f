package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"enrollgate/internal/pending/models"
	"enrollgate/pkg/testutil"
)

func TestDedupeKeepsMostRecentlyUpdated(t *testing.T) {
	older := testutil.NewRegistrationBuilder().UpdatedAt(testutil.T0.Add(time.Hour)).Build()
	newer := testutil.NewRegistrationBuilder().UpdatedAt(testutil.T0.Add(2 * time.Hour)).Build()
	other := testutil.NewRegistrationBuilder().WithNationalID("300000009").Build()

	// Insertion order must not decide: the newer record comes first here.
	kept, discarded := Dedupe([]*models.Registration{newer, other, older})

	assert.Equal(t, []*models.Registration{newer, other}, kept)
	assert.Equal(t, []*models.Registration{older}, discarded)

	kept, discarded = Dedupe([]*models.Registration{older, other, newer})
	assert.Equal(t, []*models.Registration{newer, other}, kept)
	assert.Equal(t, []*models.Registration{older}, discarded)
}

func TestDedupeBreaksUpdatedTieByCreatedAt(t *testing.T) {
	a := testutil.NewRegistrationBuilder().Build()
	b := testutil.NewRegistrationBuilder().Build()
	b.CreatedAt = a.CreatedAt.Add(time.Minute)

	kept, _ := Dedupe([]*models.Registration{b, a})
	assert.Same(t, b, kept[0])
	assert.True(t, Newer(b, a))
	assert.False(t, Newer(a, b))
}

func TestDedupeFullTieKeepsFirst(t *testing.T) {
	a := testutil.NewRegistrationBuilder().Build()
	b := testutil.NewRegistrationBuilder().Build()

	kept, discarded := Dedupe([]*models.Registration{a, nil, b})
	assert.Len(t, kept, 1)
	assert.Same(t, a, kept[0])
	assert.Len(t, discarded, 1)
}
