package specfile

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSpec = `
tools:
  - name: by_region
    group: sales
    description: Sales totals per region
    kind: select
    code: |
      SELECT region, sum(total) AS total
      FROM sales
      WHERE dt >= :since
      GROUP BY region
    parameters:
      since:
        type: string
        description: Start date
        required: true
resources:
  - uri: chimera://memo/operations
    group: ops
    name: memo
    content: Remember to rotate the credentials.
prompts:
  - name: review
    group: utility
    template: "Review {artifact} with focus on {focus}."
    arguments:
      - name: artifact
        required: true
      - name: focus
macros:
  - name: active_filter
    template: '{{define "active_filter"}}status = ''active''{{end}}'
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sampleSpec))
	require.NoError(t, err)
	require.Len(t, f.Tools, 1)
	require.Len(t, f.Resources, 1)
	require.Len(t, f.Prompts, 1)
	require.Len(t, f.Macros, 1)

	tool := f.Tools[0]
	assert.Equal(t, "by_region", tool.Name)
	assert.Equal(t, "sales", tool.Group)
	assert.Equal(t, "select", tool.Kind)
	assert.Contains(t, tool.Code, "GROUP BY region")
	require.Contains(t, tool.Parameters, "since")
	assert.True(t, tool.Parameters["since"].Required)

	assert.Equal(t, "chimera://memo/operations", f.Resources[0].URI)
	require.Len(t, f.Prompts[0].Arguments, 2)
	assert.True(t, f.Prompts[0].Arguments[0].Required)
	assert.False(t, f.Prompts[0].Arguments[1].Required)
}

func TestParse_Rejections(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "unknown top-level key",
			doc:  "widgets:\n  - name: x\n",
			want: "parsing spec file",
		},
		{
			name: "tool without name",
			doc:  "tools:\n  - group: g\n    kind: select\n    code: SELECT 1\n",
			want: "has no name",
		},
		{
			name: "tool without group",
			doc:  "tools:\n  - name: t\n    kind: select\n    code: SELECT 1\n",
			want: "has no group",
		},
		{
			name: "tool without code",
			doc:  "tools:\n  - name: t\n    group: g\n    kind: select\n",
			want: "has no code",
		},
		{
			name: "tool with unknown kind",
			doc:  "tools:\n  - name: t\n    group: g\n    kind: shell\n    code: ls\n",
			want: "unknown kind",
		},
		{
			name: "resource without uri",
			doc:  "resources:\n  - group: g\n    name: r\n    content: x\n",
			want: "has no uri",
		},
		{
			name: "prompt without template",
			doc:  "prompts:\n  - name: p\n    group: g\n",
			want: "has no template",
		},
		{
			name: "macro without template",
			doc:  "macros:\n  - name: m\n",
			want: "has no template",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMarshalParseRoundTrip(t *testing.T) {
	f, err := Parse([]byte(sampleSpec))
	require.NoError(t, err)
	data, err := Marshal(f)
	require.NoError(t, err)
	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, f, again)
}

func TestQualifiedName(t *testing.T) {
	assert.Equal(t, "sales_by_region", QualifiedName("sales", "by_region"))
}

func TestBuildSchemaRoundTrip(t *testing.T) {
	params := map[string]ParameterSpec{
		"since":  {Type: "string", Description: "Start date", Required: true},
		"region": {Type: "string"},
		"limit":  {Type: "integer", Description: "Row cap"},
	}
	raw := buildSchema(params)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(raw, &schema))
	assert.Equal(t, "object", schema["type"])

	assert.Equal(t, params, schemaToParameters(raw))
}

func TestSchemaToParameters_Degenerate(t *testing.T) {
	assert.Nil(t, schemaToParameters(nil))
	assert.Nil(t, schemaToParameters(json.RawMessage(`not json`)))
	assert.Nil(t, schemaToParameters(json.RawMessage(`{"type":"object"}`)))
}

func TestBlankTemplateActions(t *testing.T) {
	tests := []struct {
		name string
		in   string
		out  string
	}{
		{
			name: "no actions",
			in:   "SELECT 1",
			out:  "SELECT 1",
		},
		{
			name: "conditional block blanked",
			in:   "SELECT * FROM t WHERE a = :a{{if .arguments.b}} AND b = :b{{end}}",
			out:  "SELECT * FROM t WHERE a = :a  AND b = :b ",
		},
		{
			name: "nested braces inside action",
			in:   "SELECT {{printf \"%s\" .arguments.col}} FROM t",
			out:  "SELECT   FROM t",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.out, blankTemplateActions(tt.in))
		})
	}
}
