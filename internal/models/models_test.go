package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeBusinessCode(t *testing.T) {
	cases := map[string]BusinessCode{
		`{"code":"success","data":{}}`: "success",
		`{"code":"parse_error"}`:       "parse_error",
		`{"code":4001}`:                "4001",
		`{"code":null}`:                "",
		`{"msg":"no code"}`:            "",
	}
	for raw, want := range cases {
		var env Envelope
		require.NoError(t, json.Unmarshal([]byte(raw), &env), raw)
		assert.Equal(t, want, env.Code, raw)
	}
}

func TestPageIndexDefaultsToZero(t *testing.T) {
	var r ParseResult
	require.NoError(t, json.Unmarshal([]byte(`{"pages":[{"md":"a"},{"page_idx":3,"md":"b"}]}`), &r))
	assert.Equal(t, 0, r.Pages[0].Index())
	assert.Equal(t, 3, r.Pages[1].Index())
	assert.Equal(t, "a", r.FirstPageMD())

	var empty *ParseResult
	assert.Equal(t, "", empty.FirstPageMD())
}

func TestImageStatusParsedResult(t *testing.T) {
	st := ImageStatus{Result: json.RawMessage(`{"pages":[{"page_idx":0,"md":"# hi"}]}`)}
	assert.Equal(t, "# hi", st.ParsedResult().FirstPageMD())
	assert.Nil(t, ImageStatus{Result: json.RawMessage(`"oops"`)}.ParsedResult())
	assert.Nil(t, ImageStatus{}.ParsedResult())
}

func TestEnumValidation(t *testing.T) {
	assert.True(t, ExportDOCX.Valid())
	assert.False(t, ExportFormat("pdf").Valid())
	assert.True(t, FormulaDollar.Valid())
	assert.False(t, FormulaMode("latex").Valid())
	assert.Equal(t, ModelV2, ParseModel("").Normalize())
	assert.False(t, ParseModel("v9").Valid())
	assert.True(t, TaskStatusFailed.IsTerminal())
	assert.False(t, TaskStatusProcessing.IsTerminal())
}
