package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultGraph_Validates(t *testing.T) {
	require.NoError(t, DefaultGraph().Validate())
}

func TestGraph_StagesFor(t *testing.T) {
	g := DefaultGraph()

	residential := g.StagesFor(TypeResidential)
	assert.Len(t, residential, 12)
	assert.Equal(t, "contract_formulation", residential[0].ID)
	assert.Equal(t, "execution_installation", residential[len(residential)-1].ID)

	maintenance := g.StagesFor(TypeMaintenance)
	ids := make([]string, 0, len(maintenance))
	for _, s := range maintenance {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{
		"contract_formulation",
		"contract_signature",
		"execution_awaiting_mobilization",
		"execution_installation",
	}, ids)
}

func TestGraph_UnknownTypeIsEmpty(t *testing.T) {
	g := DefaultGraph()
	assert.Empty(t, g.StagesFor("SOLAR_FARM"))
	assert.Empty(t, g.StagesFor(""))
	assert.False(t, g.Knows("SOLAR_FARM"))
	assert.True(t, g.Knows(TypeRural))
}

func TestGraph_Fields(t *testing.T) {
	fields := DefaultGraph().Fields()

	assert.Equal(t, []Field{FieldID, FieldType, FieldPartnerID}, fields[:3])
	assert.Contains(t, fields, FieldHomologationConcluded)
	assert.Contains(t, fields, FieldExecutionFinish)

	seen := map[Field]bool{}
	for _, f := range fields {
		assert.False(t, seen[f], "duplicate field %s", f)
		seen[f] = true
	}
}

func TestGraph_ProjectTypes(t *testing.T) {
	types := DefaultGraph().ProjectTypes()
	assert.ElementsMatch(t, []string{
		TypeResidential, TypeCommercial, TypeIndustrial, TypeRural, TypeMaintenance,
	}, types)
}

func TestGraph_ValidateRejectsBadStages(t *testing.T) {
	tests := []struct {
		name   string
		stages []Stage
	}{
		{"empty id", []Stage{{Phase: "P", Label: "L", Entry: "a.b", Exit: "a.c"}}},
		{"duplicate id", []Stage{
			{ID: "x", Phase: "P", Label: "L", Entry: "a.b", Exit: "a.c"},
			{ID: "x", Phase: "P", Label: "M", Entry: "a.c", Exit: "a.d"},
		}},
		{"missing label", []Stage{{ID: "x", Phase: "P", Entry: "a.b", Exit: "a.c"}}},
		{"missing exit", []Stage{{ID: "x", Phase: "P", Label: "L", Entry: "a.b"}}},
		{"same entry and exit", []Stage{{ID: "x", Phase: "P", Label: "L", Entry: "a.b", Exit: "a.b"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, NewGraph(tt.stages...).Validate())
		})
	}
}

func TestField_Path(t *testing.T) {
	assert.Equal(t, []string{"homologation", "accessRequestDate"}, FieldHomologationAccessRequest.Path())
	assert.Equal(t, []string{"id"}, FieldID.Path())
}
