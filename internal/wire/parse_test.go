package wire

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFullDocument(t *testing.T) {
	payload, err := os.ReadFile("testdata/full.json")
	require.NoError(t, err)

	doc, err := Parse(payload)
	require.NoError(t, err)

	assert.Equal(t, "Coastal Sediment Survey", doc.Title)
	require.NotNil(t, doc.DMPID)
	assert.Equal(t, "doi", doc.DMPID.Type)
	require.NotNil(t, doc.Contact)
	assert.Equal(t, "sam.rivera@example.edu", doc.Contact.Mbox)
	assert.Equal(t, "Example University", doc.Contact.RoadmapAffiliation.Name)

	require.Len(t, doc.Contributors, 1)
	assert.Equal(t, StringList{"https://credit.niso.org/contributor-roles/data-curation/", "author"}, doc.Contributors[0].Role)

	require.Len(t, doc.Projects, 1)
	require.Len(t, doc.Projects[0].Funding, 1)
	assert.Equal(t, "granted", doc.Projects[0].Funding[0].FundingStatus)

	require.Len(t, doc.Costs, 1)
	require.NotNil(t, doc.Costs[0].Value.Float())
	assert.InDelta(t, 1200.50, *doc.Costs[0].Value.Float(), 0.001)

	require.Len(t, doc.Datasets, 1)
	ds := doc.Datasets[0]
	assert.Equal(t, []string{"sediment", "coastal"}, ds.Keyword.Clean())
	require.Len(t, ds.Distribution, 1)
	assert.Equal(t, StringList{"text/csv"}, ds.Distribution[0].Format)
	require.NotNil(t, ds.Distribution[0].ByteSize.Int())
	assert.Equal(t, int64(2048), *ds.Distribution[0].ByteSize.Int())
	assert.Equal(t, "Core scanner", ds.TechnicalResource[0].Label())

	require.Len(t, doc.RelatedIdentifiers, 2)
	assert.Equal(t, "is_cited_by", doc.RelatedIdentifiers[0].Relation())
	assert.Equal(t, "IsReferencedBy", doc.RelatedIdentifiers[1].Relation())

	assert.Empty(t, doc.Problems())
}

func TestParseBareDocument(t *testing.T) {
	doc, err := Parse([]byte(`{"title": "Brain Study", "dmp_id": {"type": "doi", "identifier": "10.1/abc"}, "contact": {"name": "A", "mbox": "a@x.org"}}`))
	require.NoError(t, err)
	assert.Equal(t, "Brain Study", doc.Title)
	assert.Empty(t, doc.Problems())
}

func TestParseAcceptsNulls(t *testing.T) {
	doc, err := Parse([]byte(`{"title": "T", "description": null, "dataset": null, "contact": {"name": "A", "mbox": "a@x.org", "contact_id": null}}`))
	require.NoError(t, err)
	assert.Empty(t, doc.Datasets)
	assert.Nil(t, doc.Contact.ContactID)
}

func TestParseRejectsWrongShapes(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"malformed json", `{"title": `},
		{"array document", `[1, 2]`},
		{"dataset as string", `{"title": "T", "dataset": "nope"}`},
		{"title as number", `{"title": 42}`},
		{"dmp envelope not object", `{"dmp": "x"}`},
		{"byte_size as object", `{"dataset": [{"distribution": [{"byte_size": {"v": 1}}]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.payload))
			require.Error(t, err)
			var schemaErr *SchemaError
			assert.ErrorAs(t, err, &schemaErr)
			assert.NotEmpty(t, schemaErr.Problems)
		})
	}
}

func TestDocumentProblems(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
		want []string
	}{
		{
			name: "empty",
			doc:  Document{},
			want: []string{"title is required", "dmp_id.identifier is required", "contact is required"},
		},
		{
			name: "contact without email or id",
			doc: Document{
				Title:   "T",
				DMPID:   &IDRef{Type: "doi", Identifier: "10.1/x"},
				Contact: &Contact{Name: "A"},
			},
			want: []string{"contact requires mbox or contact_id.identifier"},
		},
		{
			name: "contact by identifier only",
			doc: Document{
				Title:   "T",
				DMPID:   &IDRef{Type: "doi", Identifier: "10.1/x"},
				Contact: &Contact{ContactID: &IDRef{Type: "orcid", Identifier: "0000-0002-1825-0097"}},
			},
		},
		{
			name: "blank dmp id value",
			doc: Document{
				Title:   "T",
				DMPID:   &IDRef{Type: "doi", Identifier: "  "},
				Contact: &Contact{Mbox: "a@x.org"},
			},
			want: []string{"dmp_id.identifier is required"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.doc.Problems())
		})
	}
}

func TestNumberDecoding(t *testing.T) {
	var c Cost
	require.NoError(t, jsonUnmarshal(`{"value": 12}`, &c))
	assert.Equal(t, Number("12"), c.Value)

	require.NoError(t, jsonUnmarshal(`{"value": " 7.5 "}`, &c))
	assert.Equal(t, Number("7.5"), c.Value)

	c = Cost{}
	require.NoError(t, jsonUnmarshal(`{"value": ""}`, &c))
	assert.Nil(t, c.Value.Float())

	assert.Error(t, jsonUnmarshal(`{"value": "lots"}`, &c))
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2025-01-02", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), true},
		{"2025-01-02T03:04:05Z", time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), true},
		{"2025-01-02T03:04:05", time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), true},
		{"2025-01-02T03:04:05+02:00", time.Date(2025, 1, 2, 1, 4, 5, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"next tuesday", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseTime(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.True(t, tt.want.Equal(got), "got %v", got)
		})
	}
}

func jsonUnmarshal(s string, v any) error {
	return json.Unmarshal([]byte(s), v)
}
