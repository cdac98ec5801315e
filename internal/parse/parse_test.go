package parse

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpiradze/webharvest/internal/pipeline"
)

const articleHTML = `<html><body>
<h1 class="headline">ფასები გაიზარდა</h1>
<div class="tags"><a>economy</a><a>prices</a></div>
<time class="published" datetime="2026-03-15T10:00:00Z">2026-03-15T10:00:00Z</time>
<div class="article-body">
  <p>First paragraph of   the article.</p>
  <p>Second paragraph.</p>
</div>
</body></html>`

func TestArticleParserExtractsFields(t *testing.T) {
	p, err := NewArticle(ArticleSelectors{
		Header:     "h1.headline",
		Text:       "div.article-body",
		Category:   "div.tags a",
		Time:       "time.published",
		TimeLayout: "2006-01-02T15:04:05Z",
	})
	require.NoError(t, err)

	recs, err := p.Parse(context.Background(), pipeline.Record{URL: "https://example.ge/news/1"}, []byte(articleHTML))
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, "https://example.ge/news/1", rec.URL)
	assert.Equal(t, "ფასები გაიზარდა", rec.Header)
	assert.Equal(t, "First paragraph of the article. Second paragraph.", rec.Text)
	assert.Equal(t, []string{"economy", "prices"}, rec.Category)
	require.NotNil(t, rec.Time)
	assert.Equal(t, 2026, rec.Time.Year())
}

func TestArticleParserMissingText(t *testing.T) {
	p, err := NewArticle(ArticleSelectors{Text: "div.article-body"})
	require.NoError(t, err)

	_, err = p.Parse(context.Background(), pipeline.Record{}, []byte("<html><body><p>nope</p></body></html>"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "article-body")
}

func TestArticleParserRequiresTextSelector(t *testing.T) {
	_, err := NewArticle(ArticleSelectors{Header: "h1"})
	require.Error(t, err)
}

const translationHTML = `<html><body>
<div class="pair"><p class="ka">გამარჯობა მსოფლიო</p><p class="en">Hello world</p></div>
<div class="pair"><p class="ka">კარგი დღეა</p><p class="en">It is a nice day</p></div>
</body></html>`

func TestTranslationParserEmitsPairs(t *testing.T) {
	p, err := NewTranslation(TranslationConfig{
		Selectors:        TranslationSelectors{Source: "p.ka", Target: "p.en"},
		SourceLang:       "ka",
		TargetLang:       "en",
		QualityThreshold: 0.3,
	})
	require.NoError(t, err)

	recs, err := p.Parse(context.Background(), pipeline.Record{URL: "https://example.ge/t/1"}, []byte(translationHTML))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	ids := map[string]struct{}{}
	for _, rec := range recs {
		assert.Equal(t, "ka", rec.SourceLang)
		assert.Equal(t, "en", rec.TargetLang)
		assert.NotEmpty(t, rec.SourceText)
		assert.NotEmpty(t, rec.TargetText)
		assert.False(t, rec.LowQuality)
		assert.Empty(t, rec.Error)
		require.NotEmpty(t, rec.TranslationID)
		ids[rec.TranslationID] = struct{}{}
	}
	assert.Len(t, ids, 2, "each pair gets its own id")
}

func TestTranslationParserLabelsCategory(t *testing.T) {
	p, err := NewTranslation(TranslationConfig{
		Selectors: TranslationSelectors{Source: "p.ka", Target: "p.en"},
		Category:  "news",
	})
	require.NoError(t, err)

	recs, err := p.Parse(context.Background(), pipeline.Record{URL: "https://example.ge/t/1"}, []byte(translationHTML))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Equal(t, []string{"news"}, rec.Category)
	}

	// Without a configured label the page's own category carries through.
	plain, err := NewTranslation(TranslationConfig{
		Selectors: TranslationSelectors{Source: "p.ka", Target: "p.en"},
	})
	require.NoError(t, err)
	recs, err = plain.Parse(context.Background(),
		pipeline.Record{Category: []string{"politics"}}, []byte(translationHTML))
	require.NoError(t, err)
	assert.Equal(t, []string{"politics"}, recs[0].Category)
}

func TestTranslationParserCountMismatch(t *testing.T) {
	p, err := NewTranslation(TranslationConfig{
		Selectors: TranslationSelectors{Source: "p.ka", Target: "p.missing"},
	})
	require.NoError(t, err)

	_, err = p.Parse(context.Background(), pipeline.Record{}, []byte(translationHTML))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch")
}

func TestTranslationParserFlagsLowQualityWithoutError(t *testing.T) {
	// A short source paired with a very long target is suspicious but not
	// a failure: the record is kept, flagged, and carries no error.
	html := `<html><body><p class="ka">მოკლე ტექსტი</p><p class="en">` +
		strings.Repeat("very long target text ", 20) + `</p></body></html>`

	p, err := NewTranslation(TranslationConfig{
		Selectors:        TranslationSelectors{Source: "p.ka", Target: "p.en"},
		QualityThreshold: 0.5,
	})
	require.NoError(t, err)

	recs, err := p.Parse(context.Background(), pipeline.Record{}, []byte(html))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].LowQuality)
	assert.Less(t, recs[0].QualityScore, 0.5)
	assert.Empty(t, recs[0].Error)
}

func TestScoreTranslation(t *testing.T) {
	assert.Zero(t, ScoreTranslation("", "something"))
	assert.Zero(t, ScoreTranslation("same text", "same text"))
	assert.Equal(t, 1.0, ScoreTranslation("hello world", "გამარჯობა მსოფლიო"))

	short := "ten chars."
	long := strings.Repeat("x", 400)
	score := ScoreTranslation(short, long)
	assert.Greater(t, score, 0.0)
	assert.Less(t, score, 0.5)
}
