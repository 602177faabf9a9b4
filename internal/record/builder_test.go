package record

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/fipibank-harvester/internal/bank"
)

var informatics = bank.Subject{Name: "Информатика и ИКТ", Hash: "B9ACA5BBB2E19E434CD6BEC25284C67F"}

func TestBuild(t *testing.T) {
	t.Parallel()

	b := NewBuilder(bank.NewEndpoints("", bank.GiaEGE))
	markup := `<div class="qblock"><p>prefix</p></div><div class="qblock" id="q3D4E5F"><table><tbody><tr><td>` +
		`<script>ShowPictureQ('../../docs/B9AC/questions/3D4E5F/a.png');ShowPictureQxs('docs/B9AC/b.gif','300','200')</script>` +
		`</td></tr><tr><td><script>ShowPictureQ('../../docs/B9AC/questions/3D4E5F/a.png')</script></td></tr></tbody></table></div>`

	rec, err := b.Build(bank.Card{ID: "q3D4E5F", HasID: true, HTML: markup}, informatics)
	require.NoError(t, err)
	require.Equal(t, "3D4E5F", rec.ProblemID)
	require.Equal(t, informatics.Name, rec.SubjectName)
	require.Equal(t, informatics.Hash, rec.SubjectHash)
	require.Equal(t, bank.GiaEGE, rec.GiaType)
	require.Equal(t, markup, rec.ConditionHTML)
	require.Equal(t,
		"https://ege.fipi.ru/bank/questions.php?search=1&proj=B9ACA5BBB2E19E434CD6BEC25284C67F&qid=3D4E5F",
		rec.URL,
	)
	require.Equal(t, []string{
		"https://ege.fipi.ru/docs/B9AC/questions/3D4E5F/a.png",
		"https://ege.fipi.ru/docs/B9AC/b.gif",
		"https://ege.fipi.ru/docs/B9AC/questions/3D4E5F/a.png",
	}, rec.FileURLs)
	require.Empty(t, rec.Themes)
}

func TestBuildWithoutScripts(t *testing.T) {
	t.Parallel()

	b := NewBuilder(bank.NewEndpoints("", bank.GiaOGE))
	rec, err := b.Build(bank.Card{ID: "q01", HasID: true, HTML: `<div class="qblock" id="q01">2+2?</div>`}, informatics)
	require.NoError(t, err)
	require.Equal(t, "01", rec.ProblemID)
	require.Empty(t, rec.FileURLs)
	require.Equal(t, bank.GiaOGE, rec.GiaType)
}

func TestBuildRejectsBadIDs(t *testing.T) {
	t.Parallel()

	b := NewBuilder(bank.NewEndpoints("", bank.GiaEGE))
	for _, card := range []bank.Card{
		{HTML: "<div></div>"},
		{ID: "q", HasID: true},
		{ID: "x12", HasID: true},
	} {
		_, err := b.Build(card, informatics)
		require.ErrorIs(t, err, bank.ErrStructure, "card %+v", card)
	}
}

func TestBuildAllStopsOnFirstError(t *testing.T) {
	t.Parallel()

	b := NewBuilder(bank.NewEndpoints("", bank.GiaEGE))
	_, err := b.BuildAll([]bank.Card{
		{ID: "q1", HasID: true, HTML: "<div></div>"},
		{ID: "bad", HasID: true, HTML: "<div></div>"},
	}, informatics)
	require.ErrorIs(t, err, bank.ErrStructure)

	recs, err := b.BuildAll([]bank.Card{{ID: "q1", HasID: true}, {ID: "q2", HasID: true}}, informatics)
	require.NoError(t, err)
	require.Len(t, recs, 2)
}

func TestCleanFilePath(t *testing.T) {
	t.Parallel()

	require.Equal(t, "docs/a.png", cleanFilePath("../../docs/a.png"))
	require.Equal(t, "docs/a.png", cleanFilePath("docs/a.png','"))
	require.Equal(t, "docs/a.png", cleanFilePath("../../docs/a.png','640','480"))
}
