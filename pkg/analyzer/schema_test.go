package analyzer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateConfigAcceptsWellFormedDocument(t *testing.T) {
	doc := []byte(`{"view_types": ["proc_name", "file_name"], "time_granularity": 1000}`)
	require.NoError(t, ValidateConfig(doc))
}

func TestValidateConfigRejectsMissingViewTypes(t *testing.T) {
	doc := []byte(`{"time_granularity": 1000}`)
	err := ValidateConfig(doc)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrAnalyzer)
}

func TestValidateConfigRejectsNonPositiveGranularity(t *testing.T) {
	doc := []byte(`{"view_types": ["proc_name"], "time_granularity": 0}`)
	require.Error(t, ValidateConfig(doc))
}

func TestValidateConfigRejectsMalformedJSON(t *testing.T) {
	require.Error(t, ValidateConfig([]byte(`not json`)))
}

func TestValidateConfigRejectsEmptyViewTypeString(t *testing.T) {
	doc := []byte(`{"view_types": [""]}`)
	require.Error(t, ValidateConfig(doc))
}
