package detector

import (
	"testing"

	lingua "github.com/pemistahl/lingua-go"
	"github.com/stretchr/testify/assert"
)

func TestDetector_DetectName(t *testing.T) {
	d := New()

	tests := []struct {
		name     string
		text     string
		wantLang string
		wantOK   bool
	}{
		{"empty text", "", "", false},
		{"blank text", "   \n", "", false},
		{"english", "Hello, this is a short test written in plain English.", "English", true},
		{"german", "Hallo, das ist ein kurzer Test auf Deutsch geschrieben.", "German", true},
		{"french", "Bonjour, ceci est un petit test écrit en français.", "French", true},
		{"spanish", "Hola, esto es una pequeña prueba escrita en español.", "Spanish", true},
		{"russian", "Привет, это небольшой тест, написанный на русском языке.", "Russian", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lang, ok := d.DetectName(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantLang, lang)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	lang, ok := Lookup("spanish")
	assert.True(t, ok)
	assert.Equal(t, lingua.Spanish, lang)

	lang, ok = Lookup("DE")
	assert.True(t, ok)
	assert.Equal(t, lingua.German, lang)

	_, ok = Lookup("Klingon")
	assert.False(t, ok)
}
