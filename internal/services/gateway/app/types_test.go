package app

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumber_Unmarshal(t *testing.T) {
	var n Number
	require.NoError(t, json.Unmarshal([]byte(`28.5`), &n))
	assert.Equal(t, Number(28.5), n)

	require.NoError(t, json.Unmarshal([]byte(`" 6.8 "`), &n))
	assert.Equal(t, Number(6.8), n)

	assert.ErrorIs(t, json.Unmarshal([]byte(`"warm"`), &n), errNotNumber)
	assert.ErrorIs(t, json.Unmarshal([]byte(`[1]`), &n), errNotNumber)
}

func TestSymptoms_Unmarshal(t *testing.T) {
	var req DiseaseDetectionRequest
	require.NoError(t, json.Unmarshal([]byte(`{"symptoms":[" spots ","", "wilting"]}`), &req))
	assert.Equal(t, Symptoms{"spots", "wilting"}, req.Symptoms)

	require.NoError(t, json.Unmarshal([]byte(`{"symptoms":"spots, wilting ,"}`), &req))
	assert.Equal(t, Symptoms{"spots", "wilting"}, req.Symptoms)

	assert.Error(t, json.Unmarshal([]byte(`{"symptoms":42}`), &req))
}

func TestYieldFactors_AbsentVersusZero(t *testing.T) {
	var req YieldPredictionRequest
	require.NoError(t, json.Unmarshal([]byte(`{"cropType":"rice","factors":{"soil":0}}`), &req))

	f := req.YieldFactors()
	require.NotNil(t, f.Soil)
	assert.Equal(t, 0.0, *f.Soil)
	assert.Nil(t, f.Weather)

	req = YieldPredictionRequest{CropType: "rice"}
	assert.Equal(t, 0.8, req.YieldFactors().Resolve().Weather)
}
