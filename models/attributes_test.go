package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAttributesSetKeepsPosition(t *testing.T) {
	var a Attributes
	a.Set("Year", "2015")
	a.Set("Fuel type", "Diesel")
	a.Set("year", "2016")

	require.Len(t, a, 2)
	require.Equal(t, "Year", a[0].Label)
	require.Equal(t, "2016", a[0].Value)

	v, ok := a.Get("FUEL TYPE")
	require.True(t, ok)
	require.Equal(t, "Diesel", v)
}

func TestAttributesJSONKeepsOrder(t *testing.T) {
	a := Attributes{
		{Label: "Transmission", Value: "Automatic"},
		{Label: "Année", Value: "2019"},
		{Label: "Body", Value: "Sedan"},
	}

	data, err := json.Marshal(a)
	require.NoError(t, err)
	require.Equal(t, `{"Transmission":"Automatic","Année":"2019","Body":"Sedan"}`, string(data))

	var back Attributes
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, a, back)
}

func TestAttributesUnmarshalRejectsArray(t *testing.T) {
	var a Attributes
	require.Error(t, json.Unmarshal([]byte(`["a","b"]`), &a))
}
