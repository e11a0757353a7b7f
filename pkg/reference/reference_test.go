package reference

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Loads(t *testing.T) {
	ds := Default()
	require.NotNil(t, ds)
	assert.NotEmpty(t, ds.Version)
	assert.NotEmpty(t, ds.Institutions)
	assert.NotEmpty(t, ds.Issuers)
	assert.NotEmpty(t, ds.Skills)
}

func TestInstitution_ByNameAndAlias(t *testing.T) {
	ds := Default()

	in, ok := ds.Institution("  stanford   university ")
	require.True(t, ok)
	assert.Equal(t, 100, in.Trust)

	alias, ok := ds.Institution("MIT")
	require.True(t, ok)
	assert.Equal(t, "Massachusetts Institute of Technology", alias.Name)

	_, ok = ds.Institution("Unknown Diploma Mill")
	assert.False(t, ok)
}

func TestSkill_ByNameAndKeyword(t *testing.T) {
	ds := Default()

	sk, ok := ds.Skill("go")
	require.True(t, ok)
	assert.Equal(t, "Go", sk.Name)

	sk, ok = ds.Skill("k8s")
	require.True(t, ok)
	assert.Equal(t, "Kubernetes", sk.Name)
	assert.Equal(t, "devops", sk.Category)

	_, ok = ds.Skill("COBOL")
	assert.False(t, ok)
}

func TestSkillsInText_WholeWords(t *testing.T) {
	ds := Default()

	got := ds.SkillsInText("AWS Certified Solutions Architect: EC2, S3 and Kubernetes (CKA).")
	assert.Equal(t, []string{"AWS", "Kubernetes"}, got.Sorted())

	// "javascript" must not match the "java" keyword.
	got = ds.SkillsInText("Modern JavaScript")
	assert.Equal(t, []string{"JavaScript"}, got.Sorted())

	got = ds.SkillsInText("C++ and C# with .NET")
	assert.True(t, got.Has("C++"))
	assert.True(t, got.Has("C#"))

	assert.Empty(t, ds.SkillsInText(""))
}

func TestIssuer_MatchesIssuerDomain(t *testing.T) {
	ds := Default()
	aws, ok := ds.Issuer("AWS")
	require.True(t, ok)

	assert.True(t, aws.MatchesIssuerDomain("https://aws.amazon.com/verification/ABC"))
	assert.True(t, aws.MatchesIssuerDomain("https://www.credly.com/badges/123"))
	assert.False(t, aws.MatchesIssuerDomain("https://aws.amazon.com.evil.example/verify"))
	assert.False(t, aws.MatchesIssuerDomain("https://example.com/aws.amazon.com"))
	assert.False(t, aws.MatchesIssuerDomain("not a url"))
	assert.False(t, aws.MatchesIssuerDomain(""))
}

func TestIdealPostsPerWeek(t *testing.T) {
	ds := Default()
	f, ok := ds.IdealPostsPerWeek("Twitter")
	require.True(t, ok)
	assert.Equal(t, 7.0, f)

	_, ok = ds.IdealPostsPerWeek("myspace")
	assert.False(t, ok)
}

func TestParse_RejectsInvalidDataset(t *testing.T) {
	_, err := Parse([]byte(`{"version": "", "institutions": [{"name": "X", "trust": 150}], "issuers": [], "skills": [], "postingFrequency": {}}`))
	require.Error(t, err)

	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.GreaterOrEqual(t, len(se.Errors), 2)
}

func TestParse_RejectsMalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`{`))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ref.json")
	data := `{
	  "version": "test-1",
	  "institutions": [{"name": "Test University", "trust": 70}],
	  "issuers": [{"name": "Test Issuer", "domain": "issuer.example", "trust": 80}],
	  "skills": [{"name": "Go", "category": "language", "marketDemand": 50, "keywords": ["golang"]}],
	  "postingFrequency": {"twitter": 5}
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	ds, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "test-1", ds.Version)
	in, ok := ds.Institution("test university")
	require.True(t, ok)
	assert.Equal(t, 70, in.Trust)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
