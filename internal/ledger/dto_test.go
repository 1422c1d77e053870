package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func validPosting() PostingInput {
	return PostingInput{
		Date:         time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
		SourceModule: "LEASE",
		SourceID:     uuid.New(),
		Memo:         "Lease interest 2025-01",
		PostedBy:     1,
		Lines: []PostingLineInput{
			{AccountID: 100, Debit: 112.55},
			{AccountID: 200, Credit: 112.55},
		},
	}
}

func TestPostingInputValidate(t *testing.T) {
	require.NoError(t, validPosting().Validate())
}

func TestPostingInputUnbalanced(t *testing.T) {
	in := validPosting()
	in.Lines[1].Credit = 112.54
	require.ErrorIs(t, in.Validate(), ErrUnbalanced)
}

func TestPostingInputTooFewLines(t *testing.T) {
	in := validPosting()
	in.Lines = in.Lines[:1]
	require.ErrorIs(t, in.Validate(), ErrTooFewLines)
}

func TestPostingInputRejectsMixedLine(t *testing.T) {
	in := validPosting()
	in.Lines[0].Credit = 1
	require.Error(t, in.Validate())
}

func TestPostingInputRejectsNegative(t *testing.T) {
	in := validPosting()
	in.Lines[0].Debit = -5
	in.Lines[1].Credit = -5
	require.Error(t, in.Validate())
}

func TestPostingInputRequiresSource(t *testing.T) {
	in := validPosting()
	in.SourceID = uuid.Nil
	require.Error(t, in.Validate())

	in = validPosting()
	in.SourceModule = ""
	require.Error(t, in.Validate())
}

func TestPostingInputBalancesWithinCent(t *testing.T) {
	in := validPosting()
	// Two debit lines that only balance after 2dp formatting.
	in.Lines = []PostingLineInput{
		{AccountID: 100, Debit: 33.331},
		{AccountID: 101, Debit: 33.334},
		{AccountID: 200, Credit: 66.665},
	}
	require.NoError(t, in.Validate())
}
