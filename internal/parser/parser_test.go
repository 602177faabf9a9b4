package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/fipibank-harvester/internal/bank"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func TestSubjectIndex(t *testing.T) {
	t.Parallel()

	subjects, err := SubjectIndex(readFixture(t, "landing.html"))
	require.NoError(t, err)
	require.Equal(t, []bank.Subject{
		{Name: "Математика. Профильный уровень", Hash: "E040A72A1A3DABA14C90C97E0B6EE7DC"},
		{Name: "Информатика и ИКТ", Hash: "B9ACA5BBB2E19E434CD6BEC25284C67F"},
		{Name: "Физика", Hash: "4F431E63B9C9B25246F00AD7B5253996"},
	}, subjects)
}

func TestSubjectIndexMissingList(t *testing.T) {
	t.Parallel()

	_, err := SubjectIndex([]byte(`<html><body><ul><li>only one</li></ul></body></html>`))
	require.ErrorIs(t, err, bank.ErrStructure)
}

func TestSubjectIndexBadItemID(t *testing.T) {
	t.Parallel()

	_, err := SubjectIndex([]byte(`<ul></ul><ul><li id="p_">Пусто</li></ul>`))
	require.ErrorIs(t, err, bank.ErrStructure)
}

func TestThemeIndex(t *testing.T) {
	t.Parallel()

	themes, err := ThemeIndex(readFixture(t, "index.html"))
	require.NoError(t, err)
	require.Equal(t, []bank.ThemeRef{
		{CodifierID: "1.1", Name: "Кодирование информации"},
		{CodifierID: "1.2", Name: "Системы счисления"},
		{CodifierID: "2.10", Name: "Анализ программ с циклами"},
	}, themes)
}

func TestThemeIndexMissingDropdown(t *testing.T) {
	t.Parallel()

	_, err := ThemeIndex([]byte(`<html><body><ul><li>1.1 x</li></ul></body></html>`))
	require.ErrorIs(t, err, bank.ErrStructure)
}

func TestThemeIndexEntryWithoutTitle(t *testing.T) {
	t.Parallel()

	_, err := ThemeIndex([]byte(`<ul class="dropdown-menu"><li class="dropdown-item">1.1</li></ul>`))
	require.ErrorIs(t, err, bank.ErrStructure)
}

func TestProblemCards(t *testing.T) {
	t.Parallel()

	cards, err := ProblemCards(readFixture(t, "questions.html"))
	require.NoError(t, err)
	require.Len(t, cards, 4)

	require.True(t, cards[0].HasID)
	require.Equal(t, "q0A1B2C", cards[0].ID)
	require.False(t, cards[1].HasID)
	require.Empty(t, cards[1].ID)
	require.Equal(t, "q3D4E5F", cards[2].ID)
	require.True(t, strings.HasPrefix(cards[0].HTML, `<div class="qblock" id="q0A1B2C">`))
	require.Contains(t, cards[2].HTML, "ShowPictureQ")
}

func TestProblemCardsEmptyPage(t *testing.T) {
	t.Parallel()

	cards, err := ProblemCards([]byte(`<html><body><p>Нет заданий</p></body></html>`))
	require.NoError(t, err)
	require.Empty(t, cards)
}

func TestListingReassemblesFixture(t *testing.T) {
	t.Parallel()

	cards, err := Listing(readFixture(t, "questions.html"))
	require.NoError(t, err)
	require.Len(t, cards, 3)
	require.Equal(t, []string{"q0A1B2C", "q3D4E5F", "q6A7B8C"}, []string{cards[0].ID, cards[1].ID, cards[2].ID})
	require.True(t, strings.HasPrefix(cards[1].HTML, `<div class="qblock"><p>Рассмотрите рисунок.</p></div>`))
	require.Contains(t, cards[1].HTML, `id="q3D4E5F"`)
}
