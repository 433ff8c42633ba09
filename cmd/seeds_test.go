package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-qualifier/internal/model"
	"github.com/sells-group/lead-qualifier/internal/store"
)

func TestParseSeeds(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "array",
			input: `  [{"company_name":"Fjord Logistikk AS","source_type":"e24"},{"company_name":"Nordlys Energi AS"}]`,
			want:  []string{"Fjord Logistikk AS", "Nordlys Energi AS"},
		},
		{
			name:  "json lines",
			input: "{\"company_name\":\"Fjord Logistikk AS\"}\n\n{\"company_name\":\"Nordlys Energi AS\"}\n",
			want:  []string{"Fjord Logistikk AS", "Nordlys Energi AS"},
		},
		{
			name:  "empty",
			input: " \n ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seeds, err := parseSeeds(strings.NewReader(tt.input))
			require.NoError(t, err)
			var names []string
			for _, sd := range seeds {
				names = append(names, sd.CompanyName)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestParseSeeds_ReportsBadRecord(t *testing.T) {
	_, err := parseSeeds(strings.NewReader("{\"company_name\":\"A\"}\n{not json}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode record 2")
}

func TestImportSeeds(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "leads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(ctx))

	input := `[
		{"id":"s1","company_name":"Fjord Logistikk AS","org_number":"923 456 789","source_type":"e24","trigger_detected":"restructuring"},
		{"id":"s2","company_name":"Nordlys Energi AS","trigger_detected":""},
		{"id":"s3","company_name":"  ","source_type":"e24"}
	]`

	res, err := importSeeds(ctx, st, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, seedImport{Read: 3, Inserted: 2, Invalid: 1}, res)

	seeds, err := st.UnprocessedSeeds(ctx, 10)
	require.NoError(t, err)
	require.Len(t, seeds, 2)
	byID := map[string]model.Seed{}
	for _, sd := range seeds {
		byID[sd.ID] = sd
	}
	assert.Equal(t, model.TriggerRestructuring, byID["s1"].Trigger)
	assert.Equal(t, "923456789", byID["s1"].OrgNumber)
	assert.Equal(t, model.TriggerLeadershipChange, byID["s2"].Trigger)
	assert.Equal(t, model.SourceDefault, byID["s2"].SourceType)

	res, err = importSeeds(ctx, st, strings.NewReader(input))
	require.NoError(t, err)
	assert.Zero(t, res.Inserted)
}
