package importer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMapping(t *testing.T) {
	m := DefaultMapping()

	assert.Equal(t, 10, m.Codes.Len())
	name, ok := m.Codes.Lookup("SN/L07")
	require.True(t, ok)
	assert.Equal(t, "Cómputo 07", name)

	_, ok = m.Codes.Lookup("SN/NOPE")
	assert.False(t, ok)
}

func TestFacultyTable_Infer(t *testing.T) {
	table := DefaultMapping().Faculties

	cases := map[string]string{
		"Fotografía Publicitaria":     "Escuela de Arte y Diseño",
		"DISEÑO GRÁFICO":              "Escuela de Arte y Diseño",
		"Cálculo Diferencial":         "Facultad de Ingeniería",
		"Psicología Social":           "Facultad de Ciencias Sociales",
		"Enfermería Comunitaria":      "Facultad de Ciencias de la Salud",
		"Historia Universal":          "Facultad por Determinar",
		"Redes y Arte Digital":        "Escuela de Arte y Diseño",
		"Derecho de la Salud Pública": "Facultad de Ciencias Sociales",
	}
	for subject, want := range cases {
		assert.Equal(t, want, table.Infer(subject), subject)
	}
}

func TestLoadMapping(t *testing.T) {
	t.Run("custom document", func(t *testing.T) {
		doc := `
version: "2025-1"
codes:
  LAB/A: Laboratorio A
faculties:
  - faculty: Ciencias
    keywords: [biología]
`
		m, err := LoadMapping(strings.NewReader(doc))
		require.NoError(t, err)
		assert.Equal(t, "2025-1", m.Codes.Version)
		assert.Equal(t, "Ciencias", m.Faculties.Infer("Biología Celular"))
		assert.Equal(t, "Facultad por Determinar", m.Faculties.Infer("Arte"))
	})

	t.Run("rejects missing version", func(t *testing.T) {
		_, err := LoadMapping(strings.NewReader("codes:\n  A: B\n"))
		assert.ErrorIs(t, err, ErrInvalidMapping)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		_, err := LoadMapping(strings.NewReader("version: x\ncodes:\n  A: B\ncolour: red\n"))
		assert.ErrorIs(t, err, ErrInvalidMapping)
	})

	t.Run("rejects empty code table", func(t *testing.T) {
		_, err := LoadMapping(strings.NewReader("version: x\n"))
		assert.ErrorIs(t, err, ErrInvalidMapping)
	})
}
