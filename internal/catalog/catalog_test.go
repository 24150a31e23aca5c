package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/range-medical/consent-api/internal/types"
)

const validYAML = `
type: iv
version: "2024.1"
title: IV Therapy Consent
questions:
  - key: g6pd
    label: G6PD Deficiency
    prompt: Do you have a G6PD deficiency?
    options: ["Yes", "No", "Unsure"]
    critical: true
    error_label: G6PD Deficiency question
  - key: allergies
    label: Allergies
    prompt: Do you have any allergies?
    options: ["Yes", "No"]
    error_label: Allergies question
    detail_prompt: Please list them
acknowledgments:
  - id: voluntary
    text: I am signing this consent voluntarily.
  - id: risks
    text: I understand the risks involved.
`

func TestParse(t *testing.T) {
	cat, err := Parse([]byte(validYAML))

	require.NoError(t, err)
	assert.Equal(t, "iv", cat.Type)
	assert.Equal(t, "2024.1", cat.Version)
	assert.Len(t, cat.Questions, 2)
	assert.Len(t, cat.Acknowledgments, 2)
	assert.Equal(
		t,
		[]types.Answer{types.AnswerYes, types.AnswerNo, types.AnswerUnsure},
		cat.Questions[0].Options,
	)
}

func TestParseRejectsInvalidCatalogs(t *testing.T) {
	tests := []struct {
		name        string
		yaml        string
		errContains string
	}{
		{
			name:        "MissingType",
			yaml:        `{version: "1", questions: [], acknowledgments: []}`,
			errContains: "missing type",
		},
		{
			name:        "MissingVersion",
			yaml:        `{type: iv, questions: [], acknowledgments: []}`,
			errContains: "missing version",
		},
		{
			name:        "NoQuestions",
			yaml:        `{type: iv, version: "1", questions: [], acknowledgments: [{id: a, text: b}]}`,
			errContains: "no screening questions",
		},
		{
			name: "DuplicateQuestionKey",
			yaml: `
type: iv
version: "1"
questions:
  - {key: a, label: A, prompt: p, options: ["Yes", "No"]}
  - {key: a, label: B, prompt: p, options: ["Yes", "No"]}
acknowledgments:
  - {id: x, text: y}
`,
			errContains: "duplicate question key",
		},
		{
			name: "SingleOption",
			yaml: `
type: iv
version: "1"
questions:
  - {key: a, label: A, prompt: p, options: ["Yes"]}
acknowledgments:
  - {id: x, text: y}
`,
			errContains: "at least two options",
		},
		{
			name: "TwoCriticalQuestions",
			yaml: `
type: iv
version: "1"
questions:
  - {key: a, label: A, prompt: p, options: ["Yes", "No"], critical: true}
  - {key: b, label: B, prompt: p, options: ["Yes", "No"], critical: true}
acknowledgments:
  - {id: x, text: y}
`,
			errContains: "more than one critical question",
		},
		{
			name: "DuplicateAcknowledgment",
			yaml: `
type: iv
version: "1"
questions:
  - {key: a, label: A, prompt: p, options: ["Yes", "No"]}
acknowledgments:
  - {id: x, text: y}
  - {id: x, text: z}
`,
			errContains: "duplicate acknowledgment id",
		},
		{
			name:        "UnknownField",
			yaml:        `{type: iv, version: "1", bogus: true}`,
			errContains: "failed to decode catalog",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))

			assert.ErrorContains(t, err, tt.errContains)
		})
	}
}

func TestCriticalQuestion(t *testing.T) {
	cat, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	q := cat.CriticalQuestion()
	require.NotNil(t, q)
	assert.Equal(t, "g6pd", q.Key)

	cat.Questions[0].Critical = false
	assert.Nil(t, cat.CriticalQuestion())
}

func TestLoadDir(t *testing.T) {
	t.Run("LoadsYAMLFiles", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(
			t,
			os.WriteFile(filepath.Join(dir, "iv.yaml"), []byte(validYAML), 0o600),
		)
		require.NoError(
			t,
			os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o600),
		)

		set, err := LoadDir(dir)

		require.NoError(t, err)
		assert.Equal(t, []string{"iv"}, set.Types())

		cat, ok := set.Get("iv")
		require.True(t, ok)
		assert.Equal(t, "iv", cat.Type)

		_, ok = set.Get("botox")
		assert.False(t, ok)
	})

	t.Run("EmptyDir", func(t *testing.T) {
		_, err := LoadDir(t.TempDir())

		assert.ErrorContains(t, err, "no catalogs found")
	})

	t.Run("MissingDir", func(t *testing.T) {
		_, err := LoadDir(filepath.Join(t.TempDir(), "nope"))

		assert.ErrorContains(t, err, "failed to read catalog dir")
	})

	t.Run("DuplicateType", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(
			t,
			os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(validYAML), 0o600),
		)
		require.NoError(
			t,
			os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(validYAML), 0o600),
		)

		_, err := LoadDir(dir)

		assert.ErrorContains(t, err, "defined twice")
	})
}
